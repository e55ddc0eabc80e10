package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/database"
	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
)

const (
	testSeller = "100000000000000001"
	testBuyer  = "200000000000000002"
	testAdmin  = "300000000000000003"
	testOther  = "400000000000000004"
)

var (
	sellerActor = Actor{UserID: testSeller, Name: "seller", Seller: true}
	buyerActor  = Actor{UserID: testBuyer, Name: "buyer"}
	adminActor  = Actor{UserID: testAdmin, Name: "admin", Admin: true}
	otherActor  = Actor{UserID: testOther, Name: "other"}
)

func init() {
	if err := i18n.Initialize("en"); err != nil {
		panic(err)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotice struct {
	ChannelID string
	Notice    Notice
}

// fakePlatform records every call and can be told to fail.
type fakePlatform struct {
	mu       sync.Mutex
	next     int
	channels map[string]bool
	deleted  []string
	sent     []sentNotice
	direct   map[string][]Notice
	granted  map[string]int
	revoked  map[string]int

	createErr  error
	refuseDM   bool
	revokeErr  error
	sendHook   func(channelID string, notice Notice) error
	revokeHook func(userID string)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: map[string]bool{},
		direct:   map[string][]Notice{},
		granted:  map[string]int{},
		revoked:  map[string]int{},
	}
}

func (p *fakePlatform) CreateTicketChannel(_ context.Context, spec TicketChannelSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.next++
	id := fmt.Sprintf("chan-%d-%s", p.next, spec.TicketRef)
	p.channels[id] = true
	return id, nil
}

func (p *fakePlatform) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, channelID)
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakePlatform) Send(_ context.Context, channelID string, notice Notice) error {
	p.mu.Lock()
	hook := p.sendHook
	p.mu.Unlock()
	if hook != nil {
		if err := hook(channelID, notice); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentNotice{ChannelID: channelID, Notice: notice})
	return nil
}

func (p *fakePlatform) SendDirect(_ context.Context, userID string, notice Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refuseDM {
		return ErrDirectMessageRefused
	}
	p.direct[userID] = append(p.direct[userID], notice)
	return nil
}

func (p *fakePlatform) GrantBuyerRole(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted[userID]++
	return nil
}

func (p *fakePlatform) RevokeBuyerRole(_ context.Context, userID string) error {
	p.mu.Lock()
	hook := p.revokeHook
	p.mu.Unlock()
	if hook != nil {
		hook(userID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revokeErr != nil {
		return p.revokeErr
	}
	p.revoked[userID]++
	return nil
}

func (p *fakePlatform) setRefuseDM(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refuseDM = v
}

func (p *fakePlatform) setSendHook(hook func(channelID string, notice Notice) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendHook = hook
}

func (p *fakePlatform) channelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

func (p *fakePlatform) hasChannel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[id]
}

func (p *fakePlatform) sentTo(channelID string) []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Notice
	for _, s := range p.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Notice)
		}
	}
	return out
}

func (p *fakePlatform) directTo(userID string) []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notice(nil), p.direct[userID]...)
}

func (p *fakePlatform) grantCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted[userID]
}

func (p *fakePlatform) revokeCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revoked[userID]
}

// containsText reports whether any notice title or body contains s.
func containsText(notices []Notice, s string) bool {
	for _, n := range notices {
		if strings.Contains(n.Title, s) || strings.Contains(n.Body, s) {
			return true
		}
	}
	return false
}

type fakeListings struct {
	mu         sync.Mutex
	published  int
	refreshed  map[string]int64
	refreshErr error
}

func newFakeListings() *fakeListings {
	return &fakeListings{refreshed: map[string]int64{}}
}

func (l *fakeListings) PublishListing(_ context.Context, channelID string, _ *models.Product, _ *StockSummary) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.published++
	return fmt.Sprintf("msg-%s-%d", channelID, l.published), nil
}

func (l *fakeListings) RefreshListing(_ context.Context, listing *models.ProductListing, _ *models.Product, stock *StockSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refreshErr != nil {
		return l.refreshErr
	}
	l.refreshed[listing.MessageID] = stock.Total
	return nil
}

type fakeArchiver struct {
	mu          sync.Mutex
	transcripts []*Transcript
	err         error
}

func (a *fakeArchiver) ArchiveTranscript(_ context.Context, t *Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.transcripts = append(a.transcripts, t)
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []*TicketEventMessage
}

func (s *fakeSink) PublishTicketEvent(_ context.Context, e *TicketEventMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

var errPlatformDown = errors.New("platform unavailable")

type testEnv struct {
	db          *gorm.DB
	clock       *testClock
	platform    *fakePlatform
	listings    *fakeListings
	archiver    *fakeArchiver
	sink        *fakeSink
	keys        *KeyService
	products    *ProductService
	reputation  *ReputationService
	events      *EventService
	transcripts *TranscriptService
	tickets     *TicketService
	scheduler   *Scheduler
	cfg         TicketConfig
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDBConns(t, 1)
}

// openTestDBConns allows conns pooled connections so concurrent callers run
// their transactions side by side instead of queueing on one connection.
func openTestDBConns(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	db, err := database.Initialize(config.DatabaseConfig{
		Driver:       "sqlite",
		SQLitePath:   filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: conns,
		MaxIdleConns: conns,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, openTestDB(t))
}

func newConcurrentTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, openTestDBConns(t, 4))
}

func newTestEnvOn(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()

	env := &testEnv{
		db:       db,
		clock:    newTestClock(),
		platform: newFakePlatform(),
		listings: newFakeListings(),
		archiver: &fakeArchiver{},
		sink:     &fakeSink{},
		cfg: TicketConfig{
			VouchWindow:            24 * time.Hour,
			IdleCloseAfter:         48 * time.Hour,
			PostDeliveryCloseAfter: 15 * time.Minute,
			CloseGrace:             time.Minute,
			ReviewsChannelID:       "reviews",
			Lang:                   "en",
			PaymentInstructions: map[models.PaymentMethod]string{
				models.PaymentMethodPayPal: "pay to shop@example.com",
			},
		},
	}

	env.keys = NewKeyService(env.db)
	env.keys.nowFn = env.clock.Now
	env.products = NewProductService(env.db, env.keys)
	env.products.SetListingPublisher(env.listings)
	env.reputation = NewReputationService(env.db)
	env.events = NewEventService(env.db, env.sink)
	env.transcripts = NewTranscriptService(env.db, env.archiver)
	env.transcripts.nowFn = env.clock.Now

	env.tickets = NewTicketService(env.db, TicketDependencies{
		Config:      env.cfg,
		Keys:        env.keys,
		Products:    env.products,
		Reputation:  env.reputation,
		Events:      env.events,
		Transcripts: env.transcripts,
		Platform:    env.platform,
		Clock:       env.clock.Now,
	})

	env.scheduler = NewScheduler(env.db, env.tickets, env.tickets, SchedulerConfig{
		MaxAttempts:  3,
		RetryBackoff: time.Minute,
	})
	env.scheduler.nowFn = env.clock.Now
	return env
}

func (e *testEnv) createTieredProduct(t *testing.T, name string, prices map[string]string) *models.Product {
	t.Helper()
	product, err := e.products.CreateProduct(context.Background(), &CreateProductRequest{
		SellerID: testSeller,
		Name:     name,
		Prices:   prices,
	})
	require.NoError(t, err)
	return product
}

func (e *testEnv) createFlatProduct(t *testing.T, name, price string) *models.Product {
	t.Helper()
	product, err := e.products.CreateProduct(context.Background(), &CreateProductRequest{
		SellerID:  testSeller,
		Name:      name,
		FlatPrice: price,
	})
	require.NoError(t, err)
	return product
}

func (e *testEnv) addKeys(t *testing.T, product *models.Product, tier string, secrets ...string) {
	t.Helper()
	for _, secret := range secrets {
		_, err := e.keys.AddKey(context.Background(), sellerActor, &AddKeyRequest{
			ProductID: product.ID,
			Tier:      tier,
			Secret:    secret,
		})
		require.NoError(t, err)
	}
}

func (e *testEnv) open(t *testing.T, buyer Actor, product *models.Product, tier string) *models.Ticket {
	t.Helper()
	req := &OpenTicketRequest{BuyerID: buyer.UserID, BuyerName: buyer.Name, ProductID: product.ID}
	if tier != "" {
		lt := models.LicenseTier(tier)
		req.Tier = &lt
	}
	ticket, err := e.tickets.Open(context.Background(), req)
	require.NoError(t, err)
	return ticket
}

// awaitingSeller drives a ticket to payment_claimed.
func (e *testEnv) awaitingSeller(t *testing.T, ticket *models.Ticket) {
	t.Helper()
	ctx := context.Background()
	buyer := Actor{UserID: ticket.BuyerID}
	_, err := e.tickets.SelectPayment(ctx, buyer, ticket.ID, string(models.PaymentMethodPayPal))
	require.NoError(t, err)
	_, err = e.tickets.ConfirmPayment(ctx, buyer, ticket.ID)
	require.NoError(t, err)
}

func (e *testEnv) delivered(t *testing.T, product *models.Product, tier string) *models.Ticket {
	t.Helper()
	ticket := e.open(t, buyerActor, product, tier)
	e.awaitingSeller(t, ticket)
	_, err := e.tickets.Deliver(context.Background(), sellerActor, ticket.ID)
	require.NoError(t, err)
	return e.reload(t, ticket.ID)
}

func (e *testEnv) reload(t *testing.T, id interface{}) *models.Ticket {
	t.Helper()
	var ticket models.Ticket
	require.NoError(t, e.db.First(&ticket, "id = ?", id).Error)
	return &ticket
}

func (e *testEnv) job(t *testing.T, ticketID interface{}, kind models.JobKind) *models.ScheduledJob {
	t.Helper()
	var job models.ScheduledJob
	err := e.db.Where("ticket_id = ? AND kind = ?", ticketID, kind).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &job
}
