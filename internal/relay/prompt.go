package relay

import (
	"strings"

	"relayd/pkg/types"
)

// RenderChatML renders msgs in ChatML and opens the assistant turn.
func RenderChatML(msgs []types.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = types.RoleUser
		}
		b.WriteString("<|im_start|>")
		b.WriteString(role)
		b.WriteByte('\n')
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}
