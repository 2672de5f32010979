package admission

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/determined-ai/devicegate/pkg/device"
)

// DefaultMessageTemplate is the blockage wording used when none is configured.
const DefaultMessageTemplate = "Waiting for device {{ .Device }}"

// MessageData is the data available to blockage message templates.
type MessageData struct {
	Device     device.UDID
	DeviceName string
}

// Messages renders the human-readable cause shown for items waiting on a device.
type Messages struct {
	tmpl    *template.Template
	devices device.Registry
}

// NewMessages parses text as a Go template with the sprig functions available.
func NewMessages(text string, devices device.Registry) (*Messages, error) {
	if text == "" {
		text = DefaultMessageTemplate
	}
	tmpl, err := template.New("blockage").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "invalid admission message template")
	}
	return &Messages{tmpl: tmpl, devices: devices}, nil
}

// DefaultMessages renders DefaultMessageTemplate.
func DefaultMessages() *Messages {
	m, err := NewMessages(DefaultMessageTemplate, nil)
	if err != nil {
		panic(err)
	}
	return m
}

// Render returns the message for udid. The UDID always appears in the result: templates
// that fail or leave it out get the default wording.
func (m *Messages) Render(udid device.UDID) string {
	fallback := fmt.Sprintf("Waiting for device %s", udid)
	if m == nil || m.tmpl == nil {
		return fallback
	}
	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, MessageData{
		Device:     udid,
		DeviceName: m.devices.Name(udid),
	}); err != nil {
		return fallback
	}
	out := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte(udid)) {
		return fallback
	}
	return out
}
