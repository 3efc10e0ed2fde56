package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/smhkhrmn/thelastpenguin/internal/store"
)

func TestBroadcastStoresSignalForProfile(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	profile := seedProfile(t, client, store.Profile{ID: "u-nova", Username: "nova", Country: "Iceland", Occupation: "Cartographer", IsSetupComplete: true})
	translator := &suffixTranslator{}
	controller := newTestController(t, client, Identity{UserID: "u-nova", DisplayName: "Nova Star"}, profile, translator)

	signal, err := controller.Broadcast(ctx, "hello void", FrequencyGeneral)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	stored, err := client.GetSignal(ctx, signal.ID)
	if err != nil {
		t.Fatalf("reload signal: %v", err)
	}
	if stored.Author != "nova" || stored.Frequency != "general" {
		t.Fatalf("unexpected stored signal: %+v", stored)
	}
	if stored.Translation == nil || *stored.Translation != "hello void [en]" {
		t.Fatalf("expected stored translation, got %v", stored.Translation)
	}
	if stored.Role != "Cartographer" || stored.Distance != "Iceland" {
		t.Fatalf("expected profile role and distance, got %q %q", stored.Role, stored.Distance)
	}
	if view := controller.View(); len(view.Cards) != 1 || view.Cards[0].Content != "hello void" {
		t.Fatalf("expected feed refetched after broadcast, got %+v", view.Cards)
	}
}

func TestBroadcastFailOpenTranslationEqualsContent(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	controller := newTestController(t, client, Identity{UserID: "u-1", DisplayName: "Drifter"}, nil, nil)

	signal, err := controller.Broadcast(ctx, "  hello void  ", FrequencyGeneral)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if signal.Translation == nil || *signal.Translation != "hello void" {
		t.Fatalf("expected translation equal to content, got %v", signal.Translation)
	}
	if signal.Author != "Drifter" || signal.Role != defaultRole || signal.Distance != defaultDistance {
		t.Fatalf("expected identity and literal defaults, got %+v", signal)
	}
}

func TestBroadcastValidation(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	anonymous := newTestController(t, client, Identity{}, nil, nil)
	if _, err := anonymous.Broadcast(ctx, "hi", FrequencyGeneral); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, nil)
	if _, err := controller.Broadcast(ctx, "   ", FrequencyGeneral); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := controller.Broadcast(ctx, "hi", FrequencyAll); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	signals, err := client.ListSignals(ctx, store.SignalQuery{})
	if err != nil {
		t.Fatalf("list signals: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("expected no writes, got %d signals", len(signals))
	}
}

func TestBroadcastRejectsConcurrentSubmission(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	translator := newBlockingTranslator()
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, translator)

	firstErr := make(chan error, 1)
	go func() {
		_, err := controller.Broadcast(ctx, "first", FrequencyGeneral)
		firstErr <- err
	}()
	<-translator.entered

	if _, err := controller.Broadcast(ctx, "second", FrequencyGeneral); !errors.Is(err, ErrActionInProgress) {
		t.Fatalf("expected ErrActionInProgress, got %v", err)
	}
	if _, err := controller.PostComment(ctx, 1, "other action", ""); errors.Is(err, ErrActionInProgress) {
		t.Fatalf("expected other actions to stay available")
	}
	close(translator.release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first broadcast: %v", err)
	}
}

func TestBroadcastWriteFailureReturnsServiceError(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{Client: newTestStore(t, nil), failSignalInsert: errStubFailure}
	controller := newTestController(t, counting, Identity{UserID: "u-1"}, nil, nil)

	_, err := controller.Broadcast(ctx, "hello", FrequencyHelp)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "feed.broadcast.insert_failed" {
		t.Fatalf("expected insert_failed service error, got %v", err)
	}
	if !errors.Is(err, errStubFailure) {
		t.Fatalf("expected wrapped cause")
	}
}

func TestCreateMissionWithoutEmailMakesNoWrite(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{Client: newTestStore(t, nil)}
	controller := newTestController(t, counting, Identity{UserID: "u-1"}, nil, nil)

	_, err := controller.CreateMission(ctx, MissionDraft{Title: "Build a raft", Type: MissionPaid, ContactEmail: "   "})
	if !errors.Is(err, ErrMissingContactEmail) {
		t.Fatalf("expected ErrMissingContactEmail, got %v", err)
	}
	if counting.missionInserts.Load() != 0 {
		t.Fatalf("expected no mission write")
	}
}

func TestCreateMissionEncodesContact(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, nil)

	mission, err := controller.CreateMission(ctx, MissionDraft{Title: "Map the void", ContactEmail: "a@b.co", ContactInstagram: "@void"})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if mission.Type != MissionPartner {
		t.Fatalf("expected default partner type, got %q", mission.Type)
	}
	parsed := store.ParseContactInfo(mission.ContactInfo)
	if parsed.Structured == nil || parsed.Structured.Email != "a@b.co" || parsed.Structured.Instagram != "@void" {
		t.Fatalf("unexpected contact info %q", mission.ContactInfo)
	}
	view := controller.View()
	if len(view.Missions) != 1 || view.Missions[0].Contact.Structured == nil {
		t.Fatalf("expected mission listed after refetch, got %+v", view.Missions)
	}

	barter, err := controller.CreateMission(ctx, MissionDraft{Title: "Trade fish", Type: " Barter ", ContactEmail: "a@b.co"})
	if err != nil {
		t.Fatalf("create mission with free-form type: %v", err)
	}
	if barter.Type != "Barter" {
		t.Fatalf("expected type stored as written, got %q", barter.Type)
	}
}

func TestToggleLikeRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	signal := &store.Signal{Content: "echo me", Frequency: "general", Author: "nova"}
	if err := client.InsertSignal(ctx, signal); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, nil)

	liked, err := controller.ToggleLike(ctx, signal.ID)
	if err != nil || !liked {
		t.Fatalf("expected liked after first toggle, got %v %v", liked, err)
	}
	if view := controller.View(); view.Cards[0].LikeCount != 1 || !view.Cards[0].LikedByMe {
		t.Fatalf("expected like reflected in view, got %+v", view.Cards[0])
	}
	liked, err = controller.ToggleLike(ctx, signal.ID)
	if err != nil || liked {
		t.Fatalf("expected unliked after second toggle, got %v %v", liked, err)
	}
	existing, err := client.FindLike(ctx, "u-1", signal.ID)
	if err != nil || existing != nil {
		t.Fatalf("expected no like stored, got %+v %v", existing, err)
	}
}

func TestConcurrentLikesFromTwoUsers(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	signal := &store.Signal{Content: "echo me", Frequency: "general", Author: "nova"}
	if err := client.InsertSignal(ctx, signal); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	first := newTestController(t, client, Identity{UserID: "u-1"}, nil, nil)
	second := newTestController(t, client, Identity{UserID: "u-2"}, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, controller := range []*Controller{first, second} {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			_, err := c.ToggleLike(ctx, signal.ID)
			errs <- err
		}(controller)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("toggle like: %v", err)
		}
	}

	likes, err := client.LikesForSignals(ctx, []int64{signal.ID})
	if err != nil {
		t.Fatalf("likes for signals: %v", err)
	}
	if len(likes) != 2 {
		t.Fatalf("expected 2 likes, got %d", len(likes))
	}
}

func TestPostCommentReplyNotifiesTarget(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	novaProfile := seedProfile(t, client, store.Profile{ID: "u-nova", Username: "nova"})
	orionProfile := seedProfile(t, client, store.Profile{ID: "u-orion", Username: "orion"})
	signal := &store.Signal{Content: "anyone?", Frequency: "help", Author: "nova"}
	if err := client.InsertSignal(ctx, signal); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	nova := newTestController(t, client, Identity{UserID: "u-nova"}, novaProfile, nil)
	orion := newTestController(t, client, Identity{UserID: "u-orion"}, orionProfile, nil)

	comment, err := orion.PostComment(ctx, signal.ID, "copy that", "nova")
	if err != nil {
		t.Fatalf("post comment: %v", err)
	}
	if comment.ReplyTo == nil || *comment.ReplyTo != "nova" || comment.Author != "orion" {
		t.Fatalf("unexpected comment: %+v", comment)
	}
	waitFor(t, "reply notification", func() bool {
		for _, notification := range nova.Notifications() {
			if notification.Message == "orion answered your transmission 💬" {
				return true
			}
		}
		return false
	})
	if len(orion.Notifications()) != 0 {
		t.Fatalf("expected no notification for the comment author")
	}
}

func TestLikeNotificationUsesSenderCountry(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	novaProfile := seedProfile(t, client, store.Profile{ID: "u-nova", Username: "nova"})
	seedProfile(t, client, store.Profile{ID: "u-orion", Username: "orion", Country: "Norway"})
	signal := &store.Signal{Content: "ping", Frequency: "general", Author: "nova"}
	if err := client.InsertSignal(ctx, signal); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	nova := newTestController(t, client, Identity{UserID: "u-nova"}, novaProfile, nil)
	orion := newTestController(t, client, Identity{UserID: "u-orion"}, nil, nil)

	if _, err := nova.ToggleLike(ctx, signal.ID); err != nil {
		t.Fatalf("self like: %v", err)
	}
	if _, err := orion.ToggleLike(ctx, signal.ID); err != nil {
		t.Fatalf("orion like: %v", err)
	}
	waitFor(t, "like notification", func() bool {
		list := nova.Notifications()
		return len(list) == 1 && list[0].Message == "New signal from Norway! 📡"
	})
}

func TestLikeNotificationDefaultsToUnknownSector(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	novaProfile := seedProfile(t, client, store.Profile{ID: "u-nova", Username: "nova"})
	signal := &store.Signal{Content: "ping", Frequency: "general", Author: "nova"}
	if err := client.InsertSignal(ctx, signal); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	nova := newTestController(t, client, Identity{UserID: "u-nova"}, novaProfile, nil)
	if err := client.InsertLike(ctx, &store.Like{UserID: "u-stranger", SignalID: signal.ID}); err != nil {
		t.Fatalf("insert like: %v", err)
	}
	waitFor(t, "like notification", func() bool {
		list := nova.Notifications()
		return len(list) == 1 && list[0].Message == "New signal from Unknown Sector! 📡"
	})
}

func TestRealtimeInsertTriggersRefetch(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, nil)
	if len(controller.View().Cards) != 0 {
		t.Fatalf("expected empty feed")
	}
	if err := client.InsertSignal(ctx, &store.Signal{Content: "from elsewhere", Frequency: "dream", Author: "orion"}); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	waitFor(t, "realtime refetch", func() bool {
		return len(controller.View().Cards) == 1
	})
}

func TestCloseReleasesSubscription(t *testing.T) {
	client := newTestStore(t, nil)
	controller, err := NewController(ControllerConfig{Store: client, Identity: Identity{UserID: "u-1"}})
	if err != nil {
		t.Fatalf("construct controller: %v", err)
	}
	controller.Start(context.Background())
	if client.Feed().SubscriberCount() != 1 {
		t.Fatalf("expected one subscription")
	}
	controller.SetProfile(&store.Profile{ID: "u-1", Username: "nova"})
	if client.Feed().SubscriberCount() != 1 {
		t.Fatalf("expected re-acquire to replace the subscription")
	}
	controller.Close()
	if client.Feed().SubscriberCount() != 0 {
		t.Fatalf("expected subscription released")
	}
}

func TestSetFilterResetsIndexAndFilters(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	for _, frequency := range []string{"general", "general", "dream"} {
		if err := client.InsertSignal(ctx, &store.Signal{Content: "s-" + frequency, Frequency: frequency, Author: "nova"}); err != nil {
			t.Fatalf("insert signal: %v", err)
		}
	}
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, nil)
	controller.Next()
	controller.Next()
	if controller.View().Index != 2 {
		t.Fatalf("expected index 2")
	}
	if err := controller.SetFilter(ctx, "dream"); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	view := controller.View()
	if view.Index != 0 || len(view.Cards) != 1 || view.Filter != FrequencyDream {
		t.Fatalf("unexpected view after filter change: index=%d cards=%d", view.Index, len(view.Cards))
	}
	if err := controller.SetFilter(ctx, "static"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestSearchMatchesContentAuthorAndTranslation(t *testing.T) {
	translation := "The sea is calm"
	signals := []EnrichedSignal{
		{Signal: store.Signal{ID: 1, Content: "deniz sakin", Author: "orion", Translation: &translation}},
		{Signal: store.Signal{ID: 2, Content: "hello", Author: "NovaStar"}},
		{Signal: store.Signal{ID: 3, Content: "nothing", Author: "x"}},
	}
	if got := FilterSignals(signals, "SEA"); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected translation match, got %+v", got)
	}
	if got := FilterSignals(signals, "nova"); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected author match, got %+v", got)
	}
	if got := FilterSignals(signals, ""); len(got) != 3 {
		t.Fatalf("expected everything for empty query")
	}
}

func TestGlobalEnglishTranslatesAndPersists(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	existing := "already english"
	for _, signal := range []*store.Signal{
		{Content: "merhaba", Frequency: "general", Author: "nova"},
		{Content: "hola", Frequency: "general", Author: "nova", Translation: &existing},
	} {
		if err := client.InsertSignal(ctx, signal); err != nil {
			t.Fatalf("insert signal: %v", err)
		}
	}
	translator := &suffixTranslator{}
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, translator)

	controller.SetGlobalEnglish(ctx, true)
	if translator.calls.Load() != 1 {
		t.Fatalf("expected one translation for the untranslated signal, got %d", translator.calls.Load())
	}
	view := controller.View()
	for _, card := range view.Cards {
		if !card.ShowsEnglish {
			t.Fatalf("expected every card in english, got %+v", card)
		}
	}
	signals, err := client.ListSignals(ctx, store.SignalQuery{})
	if err != nil {
		t.Fatalf("list signals: %v", err)
	}
	for _, signal := range signals {
		if signal.Content == "merhaba" && signal.TranslationText() != "merhaba [en]" {
			t.Fatalf("expected persisted translation, got %q", signal.TranslationText())
		}
	}
}

func TestTranslateSignalToggles(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	signal := &store.Signal{Content: "bonjour", Frequency: "general", Author: "nova"}
	if err := client.InsertSignal(ctx, signal); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	controller := newTestController(t, client, Identity{UserID: "u-1"}, nil, &suffixTranslator{})

	shown, err := controller.TranslateSignal(ctx, signal.ID)
	if err != nil || !shown {
		t.Fatalf("expected translation shown, got %v %v", shown, err)
	}
	if text := controller.View().Cards[0].Text; text != "bonjour [en]" {
		t.Fatalf("unexpected card text %q", text)
	}
	shown, err = controller.TranslateSignal(ctx, signal.ID)
	if err != nil || shown {
		t.Fatalf("expected toggle back to original, got %v %v", shown, err)
	}
	if text := controller.View().Cards[0].Text; text != "bonjour" {
		t.Fatalf("unexpected card text %q", text)
	}
	if _, err := controller.TranslateSignal(ctx, 9999); !errors.Is(err, ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestDailyQuestionFlow(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t, nil)
	controller := newTestController(t, client, Identity{UserID: "u-1", DisplayName: "Nova"}, nil, nil)

	if err := controller.SetDailyOpen(ctx, true); !errors.Is(err, ErrNoDailyQuestion) {
		t.Fatalf("expected ErrNoDailyQuestion, got %v", err)
	}
	if _, err := controller.AnswerDailyQuestion(ctx, "dreams"); !errors.Is(err, ErrNoDailyQuestion) {
		t.Fatalf("expected ErrNoDailyQuestion, got %v", err)
	}

	question := &store.DailyQuestion{Content: "What do you hear?"}
	if err := client.InsertDailyQuestion(ctx, question); err != nil {
		t.Fatalf("insert question: %v", err)
	}
	if err := controller.SetFilter(ctx, "all"); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if err := controller.SetDailyOpen(ctx, true); err != nil {
		t.Fatalf("open daily: %v", err)
	}

	signal, err := controller.AnswerDailyQuestion(ctx, "  static and whales ")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if signal.Frequency != string(FrequencyGeneral) || signal.DailyQuestionID == nil || *signal.DailyQuestionID != question.ID {
		t.Fatalf("unexpected daily answer: %+v", signal)
	}
	responses := controller.DailyResponses()
	if len(responses) != 1 || !strings.Contains(responses[0].Content, "whales") {
		t.Fatalf("expected one response, got %+v", responses)
	}
	if view := controller.View(); !view.DailyOpen || view.DailyQuestion == nil {
		t.Fatalf("expected open daily panel in view")
	}
}
