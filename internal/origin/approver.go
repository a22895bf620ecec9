package origin

import (
	"strings"

	"github.com/samber/lo"

	"watchalong/internal/protocol"
)

// Approver decides whether a viewer may join. Names are compared case-insensitively.
type Approver struct {
	blocked map[string]struct{}
}

// NewApprover refuses every name in blocked.
func NewApprover(blocked []string) *Approver {
	names := lo.FilterMap(blocked, func(name string, _ int) (string, bool) {
		name = strings.ToLower(strings.TrimSpace(name))
		return name, name != ""
	})
	return &Approver{blocked: lo.Keyify(names)}
}

// Approve answers an approve_viewer request.
func (a *Approver) Approve(username string) protocol.Approval {
	if _, ok := a.blocked[strings.ToLower(strings.TrimSpace(username))]; ok {
		return protocol.Approval{Accept: false, Reason: "not welcome on this server"}
	}
	return protocol.Approval{Accept: true}
}
