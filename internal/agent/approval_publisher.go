package agent

import (
	"github.com/nextlevelbuilder/goclaw-kernel/internal/approval"
	"github.com/nextlevelbuilder/goclaw-kernel/internal/bus"
)

// BusApprovalPublisher adapts approval.Engine's Publisher interface onto
// the message bus, turning a pending Request into an outbound
// approval_request message addressed to the channel that should render
// it to a human.
type BusApprovalPublisher struct {
	Bus *bus.Bus
}

var _ approval.Publisher = (*BusApprovalPublisher)(nil)

// PublishApprovalRequest broadcasts req as an outbound approval_request
// message on req.Channel/req.ChatID.
func (p *BusApprovalPublisher) PublishApprovalRequest(req approval.Request) {
	p.Bus.PublishOutbound(bus.ApprovalRequestMessage(req.Channel, req.ChatID, bus.ApprovalRequestPayload{
		ID:             req.ID,
		Command:        req.Command,
		WorkingDir:     req.WorkingDir,
		Context:        req.Context,
		TimeoutSecs:    req.TimeoutSecs,
		DisplayMessage: req.DisplayMessage,
	}))
}
