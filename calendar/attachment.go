package calendar

// Attachment of an incidence, either inline binary data or a URI, never
// both.
type Attachment struct {
	Data       []byte
	URI        string
	MimeType   string
	ShowInline bool
	Label      string
	Local      bool
}

func (a Attachment) IsBinary() bool {
	return len(a.Data) > 0
}

func (a Attachment) IsURI() bool {
	return len(a.Data) == 0 && a.URI != ""
}

func (a Attachment) IsEmpty() bool {
	return len(a.Data) == 0 && a.URI == ""
}
