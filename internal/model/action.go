package model

// ActionType is a primitive operation the CRM collaborator can apply.
type ActionType string

const (
	ActionAddTag      ActionType = "add_tag"
	ActionRemoveTag   ActionType = "remove_tag"
	ActionSendMessage ActionType = "send_message"
)

// Action is one entry in an outbound batch. Tag actions carry Tag;
// send_message carries Text.
type Action struct {
	Type ActionType `json:"type"`
	Tag  string     `json:"tag,omitempty"`
	Text string     `json:"text,omitempty"`
}

// AddTag builds an add_tag action.
func AddTag(tag string) Action { return Action{Type: ActionAddTag, Tag: tag} }

// RemoveTag builds a remove_tag action.
func RemoveTag(tag string) Action { return Action{Type: ActionRemoveTag, Tag: tag} }

// SendMessage builds a send_message action.
func SendMessage(text string) Action { return Action{Type: ActionSendMessage, Text: text} }
