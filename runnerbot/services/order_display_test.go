package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	created []discord.MessageCreate
	updated []discord.MessageUpdate
	lookups int
	userErr error
}

func (c *fakeClient) CreateMessage(channelID snowflake.ID, create discord.MessageCreate, _ ...rest.RequestOpt) (*discord.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, create)
	return &discord.Message{ID: snowflake.ID(900 + len(c.created)), ChannelID: channelID}, nil
}

func (c *fakeClient) UpdateMessage(_ snowflake.ID, _ snowflake.ID, update discord.MessageUpdate, _ ...rest.RequestOpt) (*discord.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, update)
	return &discord.Message{}, nil
}

func (c *fakeClient) GetUser(userID snowflake.ID, _ ...rest.RequestOpt) (*discord.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if c.userErr != nil {
		return nil, c.userErr
	}
	return &discord.User{ID: userID, Username: "user" + userID.String()}, nil
}

func testOrder(status orders.Status) orders.Order {
	return orders.Order{
		ID:               "0b7e4a9c-1111-2222-3333-444455556666",
		RequesterID:      "100",
		RecipientID:      "100",
		RunnerID:         "200",
		Drink:            "flat white",
		Category:         orders.CategoryDrip,
		Location:         "desk 4",
		KarmaCost:        2,
		Status:           status,
		BonusMultiplier:  1,
		RemainingMinutes: 7,
		CreatedAt:        time.Unix(1700000000, 0),
		Message:          orders.MessageRef{ChannelID: 1, MessageID: 2},
	}
}

func TestOrderComponentsFollowStatus(t *testing.T) {
	assert.Len(t, OrderComponents(testOrder(orders.StatusPending)), 1)
	assert.Len(t, OrderComponents(testOrder(orders.StatusClaimed)), 1)
	assert.Empty(t, OrderComponents(testOrder(orders.StatusDelivered)))
	assert.Empty(t, OrderComponents(testOrder(orders.StatusExpired)))
}

func TestOrderEmbedStatusText(t *testing.T) {
	tests := []struct {
		name   string
		status orders.Status
		bonus  int64
		want   string
	}{
		{name: "Pending", status: orders.StatusPending, bonus: 1, want: "7 minutes left"},
		{name: "Claimed", status: orders.StatusClaimed, bonus: 1, want: "<@200> is on it"},
		{name: "DeliveredBonus", status: orders.StatusDelivered, bonus: 3, want: "3x bonus (+6 karma)"},
		{name: "Expired", status: orders.StatusExpired, bonus: 1, want: "2 karma refunded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder(tt.status)
			o.BonusMultiplier = tt.bonus
			embed := OrderEmbed(orders.View{Order: o, ClaimWindow: 10}, "ada")

			status := embed.Fields[len(embed.Fields)-1]
			assert.Equal(t, "Status", status.Name)
			assert.Contains(t, status.Value, tt.want)
			assert.Contains(t, embed.Footer.Text, "ada")
			assert.Contains(t, embed.Footer.Text, "0b7e4a9c")
		})
	}
}

func TestRenderOrderSkipsUnpostedOrders(t *testing.T) {
	client := &fakeClient{}
	d := NewOrderDisplay(16)
	d.SetClient(client)

	o := testOrder(orders.StatusPending)
	o.Message = orders.MessageRef{}
	require.NoError(t, d.RenderOrder(context.Background(), orders.View{Order: o}, lifecycle.EventTick))
	assert.Empty(t, client.updated)
}

func TestRenderOrderSendsReminderNotice(t *testing.T) {
	client := &fakeClient{}
	d := NewOrderDisplay(16)
	d.SetClient(client)
	d.Remember(snowflake.ID(100), "ada")

	view := orders.View{Order: testOrder(orders.StatusPending)}
	require.NoError(t, d.RenderOrder(context.Background(), view, lifecycle.EventReminder))
	require.NoError(t, d.RenderOrder(context.Background(), view, lifecycle.EventTick))

	assert.Len(t, client.updated, 2)
	require.Len(t, client.created, 1)
	assert.Contains(t, client.created[0].Content, "still waiting")
	assert.Zero(t, client.lookups, "remembered names skip the REST lookup")
}

func TestNameFallsBackToMention(t *testing.T) {
	client := &fakeClient{userErr: errors.New("unknown user")}
	d := NewOrderDisplay(16)
	d.SetClient(client)

	assert.Equal(t, "<@300>", d.Name(context.Background(), "300"))
	assert.Equal(t, "not-a-snowflake", d.Name(context.Background(), "not-a-snowflake"))

	client.userErr = nil
	assert.Equal(t, "user300", d.Name(context.Background(), "300"))
	assert.Equal(t, "user300", d.Name(context.Background(), "300"))
	assert.Equal(t, 2, client.lookups)
}

func TestPostOfferAndRenderOfferClosesButtons(t *testing.T) {
	client := &fakeClient{}
	d := NewOrderDisplay(16)
	d.SetClient(client)

	offer := runners.Offer{
		ID:               "offer-1",
		RunnerID:         "200",
		AvailableMinutes: 15,
		RemainingMinutes: 15,
		Capabilities:     []orders.Category{orders.CategoryWater, orders.CategoryDrip},
	}
	ref, err := d.PostOffer(context.Background(), snowflake.ID(5), runners.View{Offer: offer})
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(5), ref.ChannelID)
	require.Len(t, client.created, 1)
	assert.Len(t, client.created[0].Components, 1)

	offer.Message = ref
	offer.MatchedRequesterID = "100"
	require.NoError(t, d.RenderOffer(context.Background(), runners.View{Offer: offer}, runners.EventMatched))
	require.Len(t, client.updated, 1)
	assert.Empty(t, *client.updated[0].Components)
	assert.Contains(t, (*client.updated[0].Embeds)[0].Fields[1].Value, "<@100>")
}
