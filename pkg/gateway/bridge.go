// Package gateway implements the transport contracts over the MQTT bridge.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/transport"
	json "github.com/goccy/go-json"
)

// requestTimeout is the per-call timeout against the bridge
const requestTimeout = 10 * time.Second

// BridgeClient implements transport.Directory, transport.Sender and
// transport.Settings against the bridge process
type BridgeClient struct {
	mc *MqttCommunicator
}

// NewBridgeClient creates a bridge client over an MQTT communicator
func NewBridgeClient(mc *MqttCommunicator) *BridgeClient {
	return &BridgeClient{mc: mc}
}

// call performs a bridge RPC and decodes the response data into out (may be nil)
func (b *BridgeClient) call(ctx context.Context, topic string, payload interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := b.mc.Request(topic, payload, requestTimeout)
	if err != nil {
		// fallo de red o timeout del broker
		return transport.Transient(topic, err)
	}

	if resp.Error != "" {
		switch resp.ErrorCode {
		case "permission_denied":
			return fmt.Errorf("%w: %s", transport.ErrPermissionDenied, resp.Error)
		case "not_found":
			return fmt.Errorf("%w: %s", transport.ErrNotFound, resp.Error)
		default:
			return transport.Transient(topic, fmt.Errorf("%s", resp.Error))
		}
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", topic, err)
		}
	}
	return nil
}

// GetMembership returns the participants of a group with their roles
func (b *BridgeClient) GetMembership(ctx context.Context, groupID string) ([]transport.Member, error) {
	var members []transport.Member
	err := b.call(ctx, "group/membership", map[string]string{"group_id": groupID}, &members)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// SetRole promotes or demotes a participant
func (b *BridgeClient) SetRole(ctx context.Context, groupID, userID string, role transport.Role) error {
	return b.call(ctx, "group/set_role", map[string]string{
		"group_id": groupID,
		"user_id":  userID,
		"role":     string(role),
	}, nil)
}

// RemoveMember kicks a participant out of a group
func (b *BridgeClient) RemoveMember(ctx context.Context, groupID, userID string) error {
	return b.call(ctx, "group/remove", map[string]string{
		"group_id": groupID,
		"user_id":  userID,
	}, nil)
}

// GetInviteCode returns the current invite code for a group
func (b *BridgeClient) GetInviteCode(ctx context.Context, groupID string) (string, error) {
	var result struct {
		Code string `json:"code"`
	}
	if err := b.call(ctx, "group/invite_code", map[string]string{"group_id": groupID}, &result); err != nil {
		return "", err
	}
	return result.Code, nil
}

// AcceptInvite joins a group through an invite code
func (b *BridgeClient) AcceptInvite(ctx context.Context, code string) error {
	return b.call(ctx, "group/accept_invite", map[string]string{"code": code}, nil)
}

// ListGroups returns the IDs of all groups the bot participates in
func (b *BridgeClient) ListGroups(ctx context.Context) ([]string, error) {
	var groups []string
	if err := b.call(ctx, "group/list", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Send publishes an outbound text message with optional mentions
func (b *BridgeClient) Send(ctx context.Context, chatID, text string, mentions []string) error {
	return b.call(ctx, "message/send", map[string]interface{}{
		"chat_id":  chatID,
		"text":     text,
		"mentions": mentions,
	}, nil)
}

// DeleteMessage revokes a message for everyone
func (b *BridgeClient) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return b.call(ctx, "message/delete", map[string]string{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// GetGroupFlags reads the per-group switches from the settings collaborator
func (b *BridgeClient) GetGroupFlags(ctx context.Context, groupID string) (transport.GroupFlags, error) {
	var flags transport.GroupFlags
	err := b.call(ctx, "settings/group_flags", map[string]string{"group_id": groupID}, &flags)
	if err != nil {
		if transport.IsNotFound(err) {
			// grupo sin configuración: bot apagado por defecto
			return transport.GroupFlags{}, nil
		}
		return transport.GroupFlags{}, err
	}
	return flags, nil
}

// EventStream delivers the three inbound event kinds from the bridge
type EventStream struct {
	mc          *MqttCommunicator
	Messages    chan transport.IncomingMessage
	Memberships chan transport.MembershipUpdate
	Deletions   chan transport.MessageDeletion
}

// NewEventStream subscribes to the bridge event topics
func NewEventStream(mc *MqttCommunicator) (*EventStream, error) {
	es := &EventStream{
		mc:          mc,
		Messages:    make(chan transport.IncomingMessage, 256),
		Memberships: make(chan transport.MembershipUpdate, 64),
		Deletions:   make(chan transport.MessageDeletion, 64),
	}

	err := mc.Subscribe("guard/events/#", func(topic string, payload []byte) {
		switch lastTopicLevel(topic) {
		case "messages":
			var ev transport.IncomingMessage
			if err := json.Unmarshal(payload, &ev); err != nil {
				logger.Error(fmt.Sprintf("Evento de mensaje inválido: %v", err), "Gateway")
				return
			}
			es.Messages <- ev
		case "membership":
			var ev transport.MembershipUpdate
			if err := json.Unmarshal(payload, &ev); err != nil {
				logger.Error(fmt.Sprintf("Evento de membresía inválido: %v", err), "Gateway")
				return
			}
			es.Memberships <- ev
		case "deletions":
			var ev transport.MessageDeletion
			if err := json.Unmarshal(payload, &ev); err != nil {
				logger.Error(fmt.Sprintf("Evento de borrado inválido: %v", err), "Gateway")
				return
			}
			es.Deletions <- ev
		default:
			logger.Debug(fmt.Sprintf("Evento desconocido en topic %s", topic), "Gateway")
		}
	})
	if err != nil {
		return nil, err
	}

	logger.System("Suscrito a los eventos del puente de transporte.", "Gateway")
	return es, nil
}

// Close drains the stream subscriptions
func (es *EventStream) Close() {
	_ = es.mc.Unsubscribe("guard/events/#")
}
