package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/scraper"
	"github.com/baxromumarov/sale-hunter/internal/store"
)

func text(s string) *string { return &s }

type fakeCollector struct {
	name    string
	bags    []listing.SignalBag
	err     error
	entered chan struct{}
	release chan struct{}
	// untilDone makes Collect return its bags only once ctx is done.
	untilDone bool
}

func (c *fakeCollector) Name() string { return c.name }

func (c *fakeCollector) Collect(ctx context.Context) ([]listing.SignalBag, error) {
	if c.entered != nil {
		close(c.entered)
		<-c.release
	}
	if c.untilDone {
		<-ctx.Done()
	}
	return c.bags, c.err
}

type fakeStore struct {
	mu       sync.Mutex
	runs     int
	listings []listing.NormalizedListing
	runErr   error
}

func (s *fakeStore) SaveRun(_ context.Context, _, _ time.Time, _ listing.Report) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return 0, s.runErr
	}
	s.runs++
	return int64(s.runs), nil
}

func (s *fakeStore) SaveListings(_ context.Context, _ int64, ls []listing.NormalizedListing) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, ls...)
	return len(ls), nil
}

type fakeAlerts []store.Alert

func (a fakeAlerts) ListAlerts(context.Context) ([]store.Alert, error) { return a, nil }

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]listing.NormalizedListing
}

func (n *recordingNotifier) Notify(_ context.Context, a store.Alert, matches []listing.NormalizedListing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]listing.NormalizedListing{}
	}
	n.sent[a.Email] = matches
	return nil
}

type fixedRand struct{ v int }

func (r fixedRand) IntN(n int) int { return r.v % n }

func darazBag() listing.SignalBag {
	return listing.SignalBag{
		IdentityKey:               "Infinix Hot 40",
		Title:                     "Infinix Hot 40",
		Source:                    "Daraz Real-time",
		SourceURL:                 "https://www.daraz.pk/products/infinix-hot-40-i1-s2.html",
		Category:                  text("Mobiles"),
		ExplicitSalePriceText:     text("Rs. 1,100"),
		ExplicitOriginalPriceText: text("Rs. 2,000"),
	}
}

func brandBag() listing.SignalBag {
	return listing.SignalBag{
		IdentityKey:               "Khaadi",
		Title:                     "Khaadi",
		Source:                    "Scraped (Real)",
		SourceURL:                 "https://pk.khaadi.com/sale/",
		Category:                  text("Clothing"),
		ExplicitSalePriceText:     text("3500"),
		ExplicitOriginalPriceText: text("5000"),
	}
}

func newTestMonitor(collectors []scraper.Collector, opts ...MonitorOption) *MonitorService {
	processor := listing.NewProcessor(listing.NewEngine(), listing.NewFallback(fixedRand{v: 5}), 2)
	cfg := MonitorConfig{
		Run: listing.RunConfig{
			MinDiscountThreshold: 25,
			KnownEntities: []listing.KnownEntity{
				{IdentityKey: "Khaadi", Category: "Clothing", FallbackURL: "https://pk.khaadi.com/sale/"},
				{IdentityKey: "Bata", Category: "Shoes"},
			},
			FallbackDiscountRange: listing.DiscountRange{Low: 10, High: 70},
		},
		Affiliate: Affiliate{DarazID: "dz-1"},
		Timeout:   time.Minute,
	}
	return NewMonitorService(collectors, processor, cfg, opts...)
}

func TestMonitorService_RunOnce(t *testing.T) {
	st := &fakeStore{}
	notifier := &recordingNotifier{}
	alerts := NewAlertService(fakeAlerts{
		{Email: "phones@example.com", Category: "Mobile", MinDiscount: 40},
		{Email: "shoes@example.com", Category: "Shoes"},
	}, notifier)

	m := newTestMonitor([]scraper.Collector{
		&fakeCollector{name: "daraz", bags: []listing.SignalBag{darazBag()}},
		&fakeCollector{name: "brands", bags: []listing.SignalBag{brandBag()}, err: errors.New("brand Limelight: 503")},
	}, WithStore(st), WithAlerts(alerts))

	res, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	r := res.Report
	if r.Accepted != 2 || r.Estimated != 1 || r.Rejected != 0 {
		t.Fatalf("Unexpected counts %+v", r)
	}
	first := r.Listings[0]
	if first.IdentityKey != "Infinix Hot 40" || first.DiscountPercent != 45 {
		t.Errorf("Expected the Daraz listing first, got %+v", first)
	}
	if first.Category == nil || *first.Category != "Mobile" {
		t.Errorf("Expected normalized category Mobile, got %v", first.Category)
	}
	if first.SourceURL == nil || !strings.HasSuffix(*first.SourceURL, "?aff_id=dz-1") {
		t.Errorf("Expected affiliate link, got %v", first.SourceURL)
	}
	last := r.Listings[2]
	if last.IdentityKey != "Bata" || last.Provenance != listing.Estimated || last.DiscountPercent != 15 {
		t.Errorf("Expected Bata estimate last, got %+v", last)
	}

	if res.CollectorErrors["brands"] == "" || len(res.CollectorErrors) != 1 {
		t.Errorf("Expected the brand collector error to be recorded, got %v", res.CollectorErrors)
	}
	if res.RunID != 1 || st.runs != 1 || len(st.listings) != 3 {
		t.Errorf("Expected one persisted run with 3 listings, got run %d, %d runs, %d listings", res.RunID, st.runs, len(st.listings))
	}
	if res.AlertsSent != 1 || len(notifier.sent["phones@example.com"]) != 1 {
		t.Errorf("Expected only the phone alert to fire, got %d / %v", res.AlertsSent, notifier.sent)
	}

	if got, ok := m.LastRun(); !ok || got.RunID != 1 {
		t.Errorf("LastRun not recorded: %+v %v", got, ok)
	}
}

func TestMonitorService_RunInProgress(t *testing.T) {
	slow := &fakeCollector{name: "slow", entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestMonitor([]scraper.Collector{slow})

	done := make(chan error, 1)
	go func() {
		_, err := m.RunOnce(context.Background())
		done <- err
	}()

	<-slow.entered
	if _, err := m.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}
	close(slow.release)

	if err := <-done; err != nil {
		t.Errorf("First run failed: %v", err)
	}
}

func TestMonitorService_StoreFailure(t *testing.T) {
	st := &fakeStore{runErr: errors.New("connection refused")}
	m := newTestMonitor([]scraper.Collector{
		&fakeCollector{name: "daraz", bags: []listing.SignalBag{darazBag()}},
	}, WithStore(st))

	res, err := m.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "save run") {
		t.Errorf("Expected a save run error, got %v", err)
	}
	if res.Report.Accepted != 1 {
		t.Errorf("The report should survive a storage failure, got %+v", res.Report)
	}
}

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, in []listing.KnownEntity) []listing.KnownEntity {
	out := append([]listing.KnownEntity(nil), in...)
	for i := range out {
		if u, ok := r[out[i].IdentityKey]; ok && out[i].FallbackURL == "" {
			out[i].FallbackURL = u
		}
	}
	return out
}

func TestMonitorService_TimeoutKeepsCollectedBags(t *testing.T) {
	st := &fakeStore{}
	m := newTestMonitor([]scraper.Collector{
		&fakeCollector{name: "daraz", bags: []listing.SignalBag{darazBag()}, untilDone: true},
	}, WithStore(st))
	m.cfg.Timeout = 50 * time.Millisecond

	res, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	r := res.Report
	if r.Accepted != 1 || r.Rejected != 0 || r.Estimated != 2 {
		t.Fatalf("Expected the late bag to be processed, got %+v", r)
	}
	for _, rej := range r.Rejections {
		if rej.Reason == listing.ReasonProcessingFailure {
			t.Errorf("Unexpected processing failure %+v", rej)
		}
	}
	if len(st.listings) != 3 {
		t.Errorf("Expected 3 persisted listings, got %d", len(st.listings))
	}
}

func TestMonitorService_Resolver(t *testing.T) {
	m := newTestMonitor(nil, WithResolver(staticResolver{"Bata": "https://bata.com.pk/collections/sale"}))

	res, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	var bata listing.NormalizedListing
	for _, l := range res.Report.Listings {
		if l.IdentityKey == "Bata" {
			bata = l
		}
	}
	if bata.SourceURL == nil || *bata.SourceURL != "https://bata.com.pk/collections/sale" {
		t.Errorf("Expected the resolved sale page, got %v", bata.SourceURL)
	}
	if bata.Source != listing.SourceEstimatedFallback {
		t.Errorf("Expected %q, got %q", listing.SourceEstimatedFallback, bata.Source)
	}
}

func TestAffiliateDecorate(t *testing.T) {
	a := Affiliate{DarazID: "dz-1", PriceOyeID: "po-1", UTMSource: "aff_retail_monitor", UTMMedium: "affiliate"}

	tests := []struct {
		in, want string
	}{
		{"https://www.daraz.pk/products/x-i1-s2.html", "https://www.daraz.pk/products/x-i1-s2.html?aff_id=dz-1"},
		{"https://www.daraz.pk/products/x-i1-s2.html?aff_id=theirs", "https://www.daraz.pk/products/x-i1-s2.html?aff_id=theirs"},
		{"https://priceoye.pk/mobiles/tecno/spark-20", "https://priceoye.pk/mobiles/tecno/spark-20?aff_id=po-1&utm_medium=affiliate&utm_source=aff_retail_monitor"},
		{"https://pk.khaadi.com/sale/", "https://pk.khaadi.com/sale/"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := a.Decorate(tt.in); got != tt.want {
			t.Errorf("Decorate(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if twice := a.Decorate(a.Decorate(tt.in)); twice != tt.want {
			t.Errorf("Decorate is not idempotent for %q: %q", tt.in, twice)
		}
	}

	if got := (Affiliate{}).Decorate("https://www.daraz.pk/products/x.html"); got != "https://www.daraz.pk/products/x.html" {
		t.Errorf("Expected no decoration without ids, got %q", got)
	}
}

func TestMatchesAlert(t *testing.T) {
	phone := listing.NormalizedListing{
		IdentityKey:     "Samsung Galaxy A15",
		Title:           "Samsung Galaxy A15",
		DiscountPercent: 30,
		Provenance:      listing.Inferred,
		Category:        text("Smart Phones"),
	}
	estimate := listing.NormalizedListing{
		IdentityKey:     "Bata",
		DiscountPercent: 60,
		Provenance:      listing.Estimated,
		Category:        text("Shoes"),
	}

	tests := []struct {
		name  string
		alert store.Alert
		l     listing.NormalizedListing
		want  bool
	}{
		{"all categories", store.Alert{Category: "All"}, phone, true},
		{"empty category", store.Alert{}, phone, true},
		{"alias category", store.Alert{Category: "Mobiles"}, phone, true},
		{"other category", store.Alert{Category: "Shoes"}, phone, false},
		{"threshold met", store.Alert{MinDiscount: 30}, phone, true},
		{"threshold missed", store.Alert{MinDiscount: 31}, phone, false},
		{"keyword hit", store.Alert{Keywords: []string{"galaxy"}}, phone, true},
		{"keyword miss", store.Alert{Keywords: []string{"iphone"}}, phone, false},
		{"estimates never match", store.Alert{Category: "Shoes"}, estimate, false},
	}
	for _, tt := range tests {
		if got := MatchesAlert(tt.alert, tt.l); got != tt.want {
			t.Errorf("%s: MatchesAlert = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAlertService_LimitsMatches(t *testing.T) {
	var listings []listing.NormalizedListing
	for i := 0; i < 15; i++ {
		listings = append(listings, listing.NormalizedListing{
			IdentityKey:     "item",
			DiscountPercent: 50,
			Provenance:      listing.Observed,
		})
	}
	notifier := &recordingNotifier{}
	svc := NewAlertService(fakeAlerts{{Email: "a@example.com", Category: "All"}}, notifier)

	sent, err := svc.Evaluate(context.Background(), listings)
	if err != nil || sent != 1 {
		t.Fatalf("Evaluate = %d, %v", sent, err)
	}
	if n := len(notifier.sent["a@example.com"]); n != maxMatchesPerAlert {
		t.Errorf("Expected %d matches, got %d", maxMatchesPerAlert, n)
	}
}

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords(" lawn, ,Kurta ,")
	if len(got) != 2 || got[0] != "lawn" || got[1] != "Kurta" {
		t.Errorf("Unexpected keywords %q", got)
	}
	if ParseKeywords("") != nil {
		t.Errorf("Expected nil for an empty list")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]string{
		"Mobiles":      "Mobile",
		"Smart Phones": "Mobile",
		" mobile ":     "Mobile",
		"Clothing":     "Clothing",
		"":             "",
	}
	for in, want := range tests {
		if got := NormalizeCategory(in); got != want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakePruner struct {
	retention time.Duration
	err       error
}

func (p *fakePruner) DeleteOldListings(_ context.Context, olderThan time.Duration) (int64, error) {
	p.retention = olderThan
	return 4, p.err
}

func TestSchedulerService_Cleanup(t *testing.T) {
	p := &fakePruner{}
	s := NewSchedulerService(p, 0, 0)
	if n := s.cleanup(context.Background()); n != 4 {
		t.Errorf("Expected 4 deleted, got %d", n)
	}
	if p.retention != 30*24*time.Hour {
		t.Errorf("Expected default 30 day retention, got %v", p.retention)
	}

	p.err = errors.New("db down")
	if n := s.cleanup(context.Background()); n != 0 {
		t.Errorf("Expected 0 on failure, got %d", n)
	}
}
