package calendar

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notebook flag bits, stored in the Flags column.
const (
	NotebookShared       = 1 << 0
	NotebookMaster       = 1 << 1
	NotebookSynchronized = 1 << 2
	NotebookReadOnly     = 1 << 3
	NotebookVisible      = 1 << 4
	NotebookRunTimeOnly  = 1 << 5
	NotebookDefault      = 1 << 6
)

// Notebook is a named collection of incidences with its own sync
// metadata. At most one notebook of a storage carries the default flag.
type Notebook struct {
	UID         string
	Name        string
	Description string
	Color       string
	Flags       int

	PluginName     string
	Account        string
	AttachmentSize int64
	SyncProfile    string
	SharedWith     []string

	SyncDate     DateTime
	ModifiedDate DateTime
	CreationDate DateTime

	CustomProperties map[string]string
}

// NewNotebook creates a visible notebook with a fresh UID.
func NewNotebook(name, description string) *Notebook {
	return &Notebook{
		UID:          uuid.NewString(),
		Name:         name,
		Description:  description,
		Flags:        NotebookVisible,
		CreationDate: Zoned(time.Now().UTC()),
	}
}

func (nb *Notebook) IsDefault() bool {
	return nb.Flags&NotebookDefault != 0
}

func (nb *Notebook) SetDefault(def bool) {
	if def {
		nb.Flags |= NotebookDefault
	} else {
		nb.Flags &^= NotebookDefault
	}
}

func (nb *Notebook) IsReadOnly() bool {
	return nb.Flags&NotebookReadOnly != 0
}

func (nb *Notebook) IsVisible() bool {
	return nb.Flags&NotebookVisible != 0
}

// SharedWithStr joins the sharing list the way it is persisted.
func (nb *Notebook) SharedWithStr() string {
	return strings.Join(nb.SharedWith, " ")
}

// SetSharedWithStr splits a persisted sharing list.
func (nb *Notebook) SetSharedWithStr(s string) {
	if s == "" {
		nb.SharedWith = nil
		return
	}
	nb.SharedWith = strings.Split(s, " ")
}

// SetCustomProperty records a custom property, removing it when the value
// is empty.
func (nb *Notebook) SetCustomProperty(name, value string) {
	if nb.CustomProperties == nil {
		nb.CustomProperties = make(map[string]string)
	}
	if value == "" {
		delete(nb.CustomProperties, name)
		return
	}
	nb.CustomProperties[name] = value
}
