package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/repo"
)

func newSvc(t *testing.T, pub *fakePublisher) *NotificationService {
	t.Helper()
	db := newSvcDB(t)
	var p Publisher
	if pub != nil {
		p = pub
	}
	return NewNotificationService(db, audience.NewResolver(directory{db}), p)
}

func userTarget(ids ...string) audience.Target {
	raw := make([]audience.RawID, len(ids))
	for i, s := range ids {
		raw[i] = audience.RawID(s)
	}
	return audience.NewTarget("user", raw)
}

func TestSend_UserTarget_RowsAndMarkRead(t *testing.T) {
	pub := &fakePublisher{connected: map[uint]bool{42: true}}
	svc := newSvc(t, pub)
	ctx := context.Background()

	res, err := svc.Send(ctx, SendInput{Title: "Hello", Message: "World", Target: userTarget("7", "42", "oops")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.RecipientCount != 2 || res.PushedUsers != 1 || res.Replayed {
		t.Fatalf("unexpected result: %+v", res)
	}
	n := res.Notification
	if n.ID == 0 || n.Type != domain.NotificationInfo || n.Priority != domain.PriorityNormal || n.TargetType != "user" {
		t.Fatalf("defaults not applied: %+v", n)
	}
	if !reflect.DeepEqual([]uint(n.TargetIDs), []uint{7, 42}) {
		t.Fatalf("target ids: %v", n.TargetIDs)
	}
	if !reflect.DeepEqual(pub.lastUsers, []uint{7, 42}) {
		t.Fatalf("publish audience: %v", pub.lastUsers)
	}

	for _, uid := range []uint{7, 42} {
		ds, err := repo.GetDeliveryStatus(ctx, svc.DB, uid, n.ID)
		if err != nil || ds.Status != domain.StatusDelivered {
			t.Fatalf("user %d row: %+v err=%v", uid, ds, err)
		}
	}

	if err := svc.MarkRead(ctx, 7, n.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	first, _ := repo.GetDeliveryStatus(ctx, svc.DB, 7, n.ID)
	if first.Status != domain.StatusRead || first.ReadAt == nil {
		t.Fatalf("user 7 not read: %+v", first)
	}
	other, _ := repo.GetDeliveryStatus(ctx, svc.DB, 42, n.ID)
	if other.Status != domain.StatusDelivered {
		t.Fatalf("user 42 changed: %+v", other)
	}

	// Second mark is a silent no-op and keeps the first read time.
	if err := svc.MarkRead(ctx, 7, n.ID); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	again, _ := repo.GetDeliveryStatus(ctx, svc.DB, 7, n.ID)
	if !again.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("read time moved: %v -> %v", first.ReadAt, again.ReadAt)
	}

	if err := svc.MarkRead(ctx, 99, n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("non-recipient should get ErrNotificationNotFound, got %v", err)
	}
}

func TestSend_PersistsBeforePush(t *testing.T) {
	pub := &fakePublisher{}
	svc := newSvc(t, pub)
	var rowsAtPush int64 = -1
	pub.onPublish = func(n *domain.Notification) {
		rowsAtPush, _ = repo.CountDeliveryStatus(context.Background(), svc.DB, n.ID)
	}
	if _, err := svc.Send(context.Background(), SendInput{Title: "t", Message: "m", Target: userTarget("1", "2", "3")}); err != nil {
		t.Fatal(err)
	}
	if rowsAtPush != 3 {
		t.Fatalf("delivery rows at push time = %d, want 3", rowsAtPush)
	}
}

func TestSend_AllUsersBroadcastScenario(t *testing.T) {
	pub := &fakePublisher{connected: map[uint]bool{}}
	svc := newSvc(t, pub)
	_, ids := seedUsers(t, svc.DB, 100)
	pub.connected[ids[0]], pub.connected[ids[50]], pub.connected[ids[99]] = true, true, true

	res, err := svc.Send(context.Background(), SendInput{Title: "All hands", Message: "Meeting at 5", Type: "announcement", Priority: "HIGH", Target: audience.NewTarget("all", nil)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.RecipientCount != 100 || res.PushedUsers != 3 {
		t.Fatalf("recipients=%d pushed=%d", res.RecipientCount, res.PushedUsers)
	}
	if res.Notification.Priority != domain.PriorityHigh {
		t.Fatalf("priority not normalized: %q", res.Notification.Priority)
	}
	// A disconnected user sees it on the next fetch.
	items, total, err := svc.ListPage(context.Background(), ids[10], false, 1, 20)
	if err != nil || total != 1 || len(items) != 1 || items[0].ID != res.Notification.ID {
		t.Fatalf("pull path: items=%+v total=%d err=%v", items, total, err)
	}
}

func TestSend_RoleTargetIsPointInTimeSnapshot(t *testing.T) {
	svc := newSvc(t, nil)
	ctx := context.Background()
	roleID, ids := seedUsers(t, svc.DB, 3)
	if err := repo.SetUserActive(ctx, svc.DB, ids[2], false); err != nil {
		t.Fatal(err)
	}

	raw := []audience.RawID{audience.RawID(itoa(roleID))}
	res, err := svc.Send(ctx, SendInput{Title: "r", Message: "m", Target: audience.NewTarget("role", raw)})
	if err != nil {
		t.Fatal(err)
	}
	if res.RecipientCount != 2 {
		t.Fatalf("inactive user should be excluded, got %d", res.RecipientCount)
	}

	// Deactivation after resolution leaves stored rows alone.
	if err := repo.SetUserActive(ctx, svc.DB, ids[0], false); err != nil {
		t.Fatal(err)
	}
	if n, _ := repo.CountDeliveryStatus(ctx, svc.DB, res.Notification.ID); n != 2 {
		t.Fatalf("rows changed after deactivation: %d", n)
	}
}

func TestSend_UnknownTargetStoresWithoutRecipients(t *testing.T) {
	pub := &fakePublisher{}
	svc := newSvc(t, pub)
	res, err := svc.Send(context.Background(), SendInput{Title: "t", Message: "m", Target: audience.NewTarget("planet", nil)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.RecipientCount != 0 || res.Notification.ID == 0 {
		t.Fatalf("unexpected: %+v", res)
	}
	if pub.calls != 0 {
		t.Fatalf("no recipients means no publish")
	}
}

func TestSend_Validation(t *testing.T) {
	svc := newSvc(t, nil)
	cases := map[string]SendInput{
		"empty title":      {Title: "   ", Message: "m"},
		"empty message":    {Title: "t", Message: "\n\t"},
		"bad type":         {Title: "t", Message: "m", Type: "spam"},
		"bad priority":     {Title: "t", Message: "m", Priority: "meh"},
		"invalid metadata": {Title: "t", Message: "m", Metadata: json.RawMessage(`{broken`)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			in.Target = userTarget("1")
			if _, err := svc.Send(context.Background(), in); !errors.Is(err, ErrInvalidNotification) {
				t.Fatalf("expected ErrInvalidNotification, got %v", err)
			}
		})
	}
}

func TestSend_NormalizesContent(t *testing.T) {
	svc := newSvc(t, nil)
	svc.TitleMaxLen = 5
	// "e" + combining acute composes to a single rune under NFC.
	res, err := svc.Send(context.Background(), SendInput{
		Title:    "  Cafe\u0301   au   lait ",
		Message:  "  body ",
		Metadata: json.RawMessage(`{"link":"/events/1"}`),
		Target:   userTarget("1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Notification.Title != "Caf\u00e9 " {
		t.Fatalf("title %q", res.Notification.Title)
	}
	if res.Notification.Message != "body" {
		t.Fatalf("message %q", res.Notification.Message)
	}
	if !strings.Contains(string(res.Notification.Metadata), "/events/1") {
		t.Fatalf("metadata %s", res.Notification.Metadata)
	}
}

func TestSend_ResolveFailureSurfaces(t *testing.T) {
	db := newSvcDB(t)
	boom := errors.New("directory down")
	svc := NewNotificationService(db, failingResolver{err: boom}, nil)
	if _, err := svc.Send(context.Background(), SendInput{Title: "t", Message: "m", Target: audience.NewTarget("all", nil)}); !errors.Is(err, boom) {
		t.Fatalf("expected resolve error, got %v", err)
	}
	var n int64
	db.Model(&domain.Notification{}).Count(&n)
	if n != 0 {
		t.Fatalf("nothing should be stored, found %d", n)
	}
}

func TestSend_IdempotentReplay(t *testing.T) {
	pub := &fakePublisher{}
	svc := newSvc(t, pub)
	ctx := context.Background()
	in := SendInput{Title: "t", Message: "m", Target: userTarget("1", "2"), PrincipalID: "user:1", IdempotencyKey: "abc-123"}

	first, err := svc.Send(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Send(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Replayed || second.Notification.ID != first.Notification.ID || second.RecipientCount != 2 {
		t.Fatalf("expected replay of %d, got %+v", first.Notification.ID, second)
	}
	if pub.calls != 1 {
		t.Fatalf("replay must not fan out again; publishes=%d", pub.calls)
	}

	// A different principal with the same key is a fresh send.
	in.PrincipalID = "user:2"
	third, err := svc.Send(ctx, in)
	if err != nil || third.Replayed || third.Notification.ID == first.Notification.ID {
		t.Fatalf("other principal should not replay: %+v err=%v", third, err)
	}
}

func TestCreate_CountsRows(t *testing.T) {
	svc := newSvc(t, nil)
	n := &domain.Notification{Title: "t", Message: "m", Type: "info", Priority: "low", TargetType: "user"}
	written, err := svc.Create(context.Background(), n, []uint{5, 6, 7})
	if err != nil || written != 3 || n.ID == 0 || n.SentAt.IsZero() {
		t.Fatalf("Create: written=%d n=%+v err=%v", written, n, err)
	}

	// Duplicate recipients violate the unique index and roll back the whole write.
	dup := &domain.Notification{Title: "d", Message: "m", Type: "info", Priority: "low", TargetType: "user"}
	if _, err := svc.Create(context.Background(), dup, []uint{1, 1}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := repo.GetNotification(context.Background(), svc.DB, dup.ID); err == nil && dup.ID != 0 {
		t.Fatalf("notification should be rolled back")
	}
}

func TestInboxOperations(t *testing.T) {
	svc := newSvc(t, nil)
	ctx := context.Background()
	var ids []uint
	for i := 0; i < 5; i++ {
		res, err := svc.Send(ctx, SendInput{Title: "n" + itoa(uint(i)), Message: "m", Target: userTarget("3")})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, res.Notification.ID)
	}
	if err := svc.MarkRead(ctx, 3, ids[0]); err != nil {
		t.Fatal(err)
	}

	if c, err := svc.UnreadCount(ctx, 3); err != nil || c != 4 {
		t.Fatalf("UnreadCount=%d err=%v", c, err)
	}
	backlog, err := svc.Backlog(ctx, 3, 2)
	if err != nil || len(backlog) != 2 || backlog[0].ID != ids[4] {
		t.Fatalf("Backlog: %+v err=%v", backlog, err)
	}
	if empty, _ := svc.Backlog(ctx, 3, 0); len(empty) != 0 {
		t.Fatalf("zero limit should yield nothing")
	}

	page, total, err := svc.ListPage(ctx, 3, false, 0, 0)
	if err != nil || total != 5 || len(page) != 5 {
		t.Fatalf("ListPage defaults: len=%d total=%d err=%v", len(page), total, err)
	}
	page, total, err = svc.ListPage(ctx, 3, true, 2, 3)
	if err != nil || total != 4 || len(page) != 1 {
		t.Fatalf("ListPage unread p2: len=%d total=%d err=%v", len(page), total, err)
	}

	updated, err := svc.MarkAllRead(ctx, 3)
	if err != nil || updated != 4 {
		t.Fatalf("MarkAllRead=%d err=%v", updated, err)
	}
	if c, _ := svc.UnreadCount(ctx, 3); c != 0 {
		t.Fatalf("unread after MarkAllRead = %d", c)
	}
	items, total, err := svc.ListPage(ctx, 99, false, 1, 10)
	if err != nil || total != 0 || items == nil {
		t.Fatalf("empty inbox should be an empty slice: %v %d %v", items, total, err)
	}
}

func itoa(u uint) string {
	b, _ := json.Marshal(u)
	return string(b)
}

func TestSend_PushOutlivesSenderCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The sender goes away once the rows are committed and the push starts.
	pub := &fakePublisher{
		connected: map[uint]bool{7: true},
		onPublish: func(*domain.Notification) { cancel() },
	}
	svc := newSvc(t, pub)

	res, err := svc.Send(ctx, SendInput{Title: "Training moved", Message: "Now at 19:00", Target: userTarget("7")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.PushedUsers != 1 {
		t.Fatalf("pushed = %d; the fan-out must not inherit the sender's cancellation", res.PushedUsers)
	}
}
