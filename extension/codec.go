package extension

// StringCodec stores a free-form string verbatim.
type StringCodec struct{}

func (StringCodec) Encode(value string) string { return value }

func (StringCodec) Decode(text string) (string, error) { return text, nil }

// NewStringItem creates an item holding a plain string
func NewStringItem(name string) *SimpleItem[string] {
	return NewItem[string](name, StringCodec{})
}
