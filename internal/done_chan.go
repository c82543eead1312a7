package internal

import "sync"

// DoneChan is closed once whatever it tracks has finished.
type DoneChan chan struct{}

// DoneFunc starts a shutdown and returns a channel closed on completion.
type DoneFunc func() DoneChan

func WrapWaitGroup(wg *sync.WaitGroup) DoneChan {
	ret := make(DoneChan)
	go func() {
		wg.Wait()
		close(ret)
	}()
	return ret
}

// Combine waits for every given channel before closing the returned one.
//
// Unlike the two-argument original, Combine accepts a variadic list so
// callers supervising more than two goroutines (pull loop, heartbeat
// loop, dispatch pool) don't need to nest calls.
func Combine(chans ...DoneChan) DoneChan {
	ret := make(DoneChan)
	go func() {
		for _, c := range chans {
			<-c
		}
		close(ret)
	}()
	return ret
}
