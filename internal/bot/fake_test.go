package bot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

type fakeDiscord struct {
	mu sync.Mutex

	nextID    int
	created   []discordgo.GuildChannelCreateData
	deleted   []string
	sent      []sentMessage
	edits     []*discordgo.MessageEdit
	rolesAdd  []string
	rolesDrop []string

	responses map[string][]*discordgo.InteractionResponse
	replies   map[string]*discordgo.WebhookEdit

	refuseDM     bool
	memberGone   bool
	createErr    error
	channelsGone bool
}

var _ discordAPI = (*fakeDiscord)(nil)
var _ interactionAPI = (*fakeDiscord)(nil)

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		responses: map[string][]*discordgo.InteractionResponse{},
		replies:   map[string]*discordgo.WebhookEdit{},
	}
}

func restError(code int) error {
	return &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: code, Message: "rejected"}}
}

func (f *fakeDiscord) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeDiscord) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, data)
	return &discordgo.Channel{ID: f.id("chan"), Name: data.Name}, nil
}

func (f *fakeDiscord) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelsGone {
		return nil, restError(discordgo.ErrCodeUnknownChannel)
	}
	f.deleted = append(f.deleted, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuseDM && len(channelID) > 3 && channelID[:3] == "dm-" {
		return nil, restError(discordgo.ErrCodeCannotSendMessagesToThisUser)
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: data})
	return &discordgo.Message{ID: f.id("msg"), ChannelID: channelID}, nil
}

func (f *fakeDiscord) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}

func (f *fakeDiscord) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeDiscord) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolesAdd = append(f.rolesAdd, userID+":"+roleID)
	return nil
}

func (f *fakeDiscord) GuildMemberRoleRemove(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberGone {
		return restError(discordgo.ErrCodeUnknownMember)
	}
	f.rolesDrop = append(f.rolesDrop, userID+":"+roleID)
	return nil
}

func (f *fakeDiscord) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[i.ID] = append(f.responses[i.ID], resp)
	return nil
}

func (f *fakeDiscord) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses[i.ID]) == 0 {
		return nil, errors.New("interaction was not acknowledged")
	}
	f.replies[i.ID] = edit
	return &discordgo.Message{ID: f.id("msg")}, nil
}

func (f *fakeDiscord) sentTo(channelID string) []*discordgo.MessageSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.MessageSend
	for _, s := range f.sent {
		if s.channelID == channelID {
			out = append(out, s.msg)
		}
	}
	return out
}

// reply returns the text an interaction was answered with, either directly
// or through the edited deferred response.
func (f *fakeDiscord) reply(i *discordgo.Interaction) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if edit, ok := f.replies[i.ID]; ok && edit.Content != nil {
		return *edit.Content
	}
	for _, r := range f.responses[i.ID] {
		if r.Data != nil && r.Data.Content != "" {
			return r.Data.Content
		}
	}
	return ""
}

func (f *fakeDiscord) lastResponse(i *discordgo.Interaction) *discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := f.responses[i.ID]
	if len(rs) == 0 {
		return nil
	}
	return rs[len(rs)-1]
}
