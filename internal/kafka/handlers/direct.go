package handlers

import (
	"encoding/json"

	"github.com/brainwaves/notification/internal/domain"
)

func init() {
	RegisterDirect(TopicCommands, handleDirectCommand)
}

// handleDirectCommand turns an operator command into a SYSTEM notification.
func handleDirectCommand(data []byte) *domain.Action {
	var cmd struct {
		CommandID string         `json:"commandId"`
		UserID    string         `json:"userId"`
		Content   string         `json:"content"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil
	}
	if cmd.UserID == "" || cmd.Content == "" {
		return nil
	}
	return &domain.Action{
		Kind:          domain.ActionSystem,
		TargetUserID:  cmd.UserID,
		Content:       cmd.Content,
		Metadata:      cmd.Metadata,
		SourceEventID: cmd.CommandID,
	}
}
