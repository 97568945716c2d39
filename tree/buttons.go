package tree

import "encoding/json"

// Button kinds as stored in a node's button payload.
const (
	ButtonURL  = "url"
	ButtonNode = "node"
)

// Default labels for buttons stored without text.
const (
	DefaultURLLabel  = "Abrir"
	DefaultNodeLabel = "Ver"
)

// Button is one stored inline button: either an external link or a jump to
// another node in the same chat's tree.
type Button struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	URL    string `json:"url,omitempty"`
	NodeID int64  `json:"node_id,omitempty"`
}

// Row is one ordered row of buttons.
type Row []Button

// URLButton builds a link button row entry.
func URLButton(text, url string) Button {
	return Button{Type: ButtonURL, Text: text, URL: url}
}

// NodeButton builds a navigation button pointing at another node.
func NodeButton(text string, nodeID int64) Button {
	return Button{Type: ButtonNode, Text: text, NodeID: nodeID}
}

// DecodeButtons parses a stored button payload. It is deliberately tolerant:
// malformed JSON, non-list payloads and buttons missing their required target
// decode to nothing rather than failing, so a corrupt payload can never take a
// node offline. Buttons stored without text get a generic label.
func DecodeButtons(raw []byte) []Row {
	if len(raw) == 0 {
		return nil
	}
	var parsed []Row
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	var rows []Row
	for _, row := range parsed {
		var rb Row
		for _, b := range row {
			switch b.Type {
			case ButtonURL:
				if b.URL == "" {
					continue
				}
				if b.Text == "" {
					b.Text = DefaultURLLabel
				}
			case ButtonNode:
				if b.NodeID == 0 {
					continue
				}
				if b.Text == "" {
					b.Text = DefaultNodeLabel
				}
			default:
				continue
			}
			rb = append(rb, b)
		}
		if len(rb) > 0 {
			rows = append(rows, rb)
		}
	}
	return rows
}

// EncodeButtons serialises button rows for storage.
func EncodeButtons(rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(rows)
}
