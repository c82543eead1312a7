package task

import "fmt"

// Kind identifies which converter a Request requires and, transitively,
// which Worker may claim the Job it becomes. The set is closed: new kinds
// are added by schema change, never registered at runtime.
type Kind uint8

const (
	// UnknownKind is the zero value, reserved for filtering contexts.
	UnknownKind Kind = iota

	// Notebook converts an executable notebook (source-encoded as an
	// annotated plain file) into its rendered form.
	Notebook

	// DiagramText converts a textual diagram description into an image.
	DiagramText

	// DiagramXML converts an XML diagram document into an image.
	DiagramXML
)

func kindToString(k Kind) string {
	switch k {
	case Notebook:
		return "notebook"
	case DiagramText:
		return "diagram-text"
	case DiagramXML:
		return "diagram-xml"
	default:
		return "unknown"
	}
}

func kindFromString(s string) (Kind, error) {
	switch s {
	case "notebook":
		return Notebook, nil
	case "diagram-text":
		return DiagramText, nil
	case "diagram-xml":
		return DiagramXML, nil
	case "unknown":
		return UnknownKind, nil
	default:
		return 0, fmt.Errorf("unknown job kind: %s", s)
	}
}

// ParseKind converts a string representation into a Kind value.
func ParseKind(s string) (Kind, error) {
	return kindFromString(s)
}

func (k Kind) String() string {
	return kindToString(k)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(kindToString(k)), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, err := kindFromString(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Valid reports whether k is one of the closed set of known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Notebook, DiagramText, DiagramXML:
		return true
	default:
		return false
	}
}
