package result_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
)

type person struct {
	Name string
}

// --- Single ---

func TestSingleOK(t *testing.T) {
	p := &person{Name: "ada"}

	tests := []struct {
		name      string
		res       result.Result[*person]
		requested result.RequestedOperation
		performed result.PerformedOperation
	}{
		{"loaded", result.ForEntity[*person]("person").Loaded().Entity(p), result.Load, result.Loaded},
		{"created", result.ForEntity[*person]("person").Created().Entity(p), result.Create, result.Created},
		{"updated", result.ForEntity[*person]("person").Updated().Entity(p), result.Update, result.Updated},
		{"deleted", result.ForEntity[*person]("person").Deleted().Entity(p), result.Delete, result.Deleted},
		{"executed", result.ForEntity[*person]("person").Executed(result.Other, result.Updated).Entity(p), result.Other, result.Updated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.res.HasSucceeded() || tt.res.HasFailed() {
				t.Fatal("expected success")
			}
			ok, isOK := tt.res.AsOK()
			if !isOK {
				t.Fatal("expected AsOK to succeed")
			}
			if ok.RequestedOperation() != tt.requested {
				t.Errorf("expected requested %s, got %s", tt.requested, ok.RequestedOperation())
			}
			if ok.PerformedOperation() != tt.performed {
				t.Errorf("expected performed %s, got %s", tt.performed, ok.PerformedOperation())
			}
			if ok.Value() != p {
				t.Error("expected payload to be the given entity")
			}
			if ok.EntityType() != "person" {
				t.Errorf("expected entity type 'person', got %q", ok.EntityType())
			}
			if _, isErr := tt.res.AsError(); isErr {
				t.Error("expected AsError to fail on OK result")
			}
			got, err := tt.res.GetOrError()
			if err != nil || got != p {
				t.Errorf("expected payload and nil error, got %v, %v", got, err)
			}
		})
	}
}

func TestSingleNamedCauses(t *testing.T) {
	b := result.ForEntity[*person]("person")

	tests := []struct {
		name string
		res  result.Result[*person]
		want result.ErrorType
		op   result.RequestedOperation
	}{
		{"not found", b.NotLoaded().BecauseClientRequestedEntityWasNOTFound().About("A").Build(), result.EntityNotFound, result.Load},
		{"already exists", b.NotCreated().BecauseClientRequestedEntityAlreadyExists().About("A").Build(), result.EntityAlreadyExists, result.Create},
		{"optimistic locking", b.NotUpdated().BecauseOptimisticLockingError(nil).About("A").Build(), result.OptimisticLockingError, result.Update},
		{"validation", b.NotCreated().BecauseClientSentEntityValidationErrors("name %s", "empty").About("A").Build(), result.EntityNotValid, result.Create},
		{"bad request", b.NotUpdated().BecauseClientBadRequest("immutable property changed").About("A").Build(), result.BadRequestData, result.Update},
		{"illegal status", b.NotDeleted().BecauseTargetEntityWasInAnIllegalStatus("locked").About("A").Build(), result.IllegalStatus, result.Delete},
		{"related missing", b.NotCreated().BecauseRelatedRequiredEntityWasNOTFound("parent P").About("A").Build(), result.RelatedRequiredEntityNotFound, result.Create},
		{"server error", b.NotLoaded().BecauseServerError(errors.New("boom")).About("A").Build(), result.ServerError, result.Load},
		{"cannot connect", b.Not(result.Other).BecauseClientCannotConnectToServer(errors.New("refused")).About("A").Build(), result.ClientCannotConnectServer, result.Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := tt.res.AsError()
			if !ok {
				t.Fatal("expected error result")
			}
			if f.ErrorType() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, f.ErrorType())
			}
			if f.RequestedOperation() != tt.op {
				t.Errorf("expected requested %s, got %s", tt.op, f.RequestedOperation())
			}
			if f.Message() == "" {
				t.Error("expected non-empty message")
			}
			if oid, _ := f.AboutValue("oid"); oid != "A" {
				t.Errorf("expected about oid 'A', got %q", oid)
			}
			if !errors.Is(f, tt.want) {
				t.Errorf("expected errors.Is to match %s", tt.want)
			}
			if tt.res.HasSucceeded() {
				t.Error("expected HasSucceeded to be false")
			}
			if _, isOK := tt.res.AsOK(); isOK {
				t.Error("expected AsOK to fail on error result")
			}
		})
	}
}

func TestGetOrErrorReturnsFault(t *testing.T) {
	res := result.ForEntity[*person]("person").NotLoaded().BecauseClientRequestedEntityWasNOTFound().About("A").Build()

	p, err := res.GetOrError()
	if p != nil {
		t.Errorf("expected nil payload, got %v", p)
	}
	if !errors.Is(err, result.EntityNotFound) {
		t.Errorf("expected ENTITY_NOT_FOUND, got %v", err)
	}
	if errors.Is(err, result.ServerError) {
		t.Error("expected not to match SERVER_ERROR")
	}

	var f *result.Fault
	if !errors.As(err, &f) {
		t.Fatal("expected *result.Fault")
	}
	if !strings.Contains(f.Error(), "oid=A") {
		t.Errorf("expected error text to mention oid=A, got %q", f.Error())
	}
}

func TestMustGetPanicsOnError(t *testing.T) {
	res := result.ForEntity[*person]("person").NotLoaded().BecauseClientRequestedEntityWasNOTFound().About("A").Build()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, result.EntityNotFound) {
			t.Errorf("expected panic with ENTITY_NOT_FOUND fault, got %v", r)
		}
	}()
	res.MustGet()
}

func TestZeroValueStepsPanic(t *testing.T) {
	tests := []struct {
		name  string
		build func()
	}{
		{"EntityStep", func() { result.EntityStep[*person]{}.Entity(&person{Name: "ada"}) }},
		{"BuildStep", func() { result.BuildStep[result.Result[*person]]{}.Build() }},
		{"BuildStep extended", func() { result.BuildStep[result.Result[*person]]{}.BuildWithExtendedErrorCode(7) }},
		{"AboutStep", func() { result.AboutStep[result.Result[*person]]{}.About("A").Build() }},
		{"ValueStep", func() { result.ValueStep[int]{}.Value(1) }},
		{"FoundStep", func() { result.FoundStep[*person]{}.Entities(nil) }},
		{"FoundOIDsStep", func() { result.FoundOIDsStep{}.OIDs(nil) }},
		{"FoundSummariesStep", func() { result.FoundSummariesStep[string]{}.Summaries(nil) }},
		{"EntitiesStep", func() { result.EntitiesStep[*person]{}.Entities(nil) }},
		{"EntitiesStep collect", func() { result.EntitiesStep[*person]{}.Collect() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				msg, ok := r.(string)
				if !ok || !strings.Contains(msg, "zero-value") {
					t.Errorf("expected a zero-value step panic, got %v", r)
				}
			}()
			tt.build()
		})
	}
}

func TestBuiltStepsDoNotPanic(t *testing.T) {
	if got := result.ForExec[int]("job").Executed(result.Other, result.Updated).Value(3).MustGet(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := result.ForOIDs("person").Found().OIDs(nil).MustGet(); len(got) != 0 {
		t.Errorf("expected no OIDs, got %v", got)
	}
}

// --- Because ---

func TestBecauseKeepsClassification(t *testing.T) {
	inner := result.ForEntity[*person]("person").
		NotLoaded().
		BecauseOptimisticLockingError(errors.New("version 3 != 4")).
		About("A").
		Build()
	_, innerErr := inner.GetOrError()

	outer := result.ForEntity[*person]("person").NotUpdated().Because(innerErr).AboutKey("batch", 7).Build()

	f, _ := outer.AsError()
	if f.ErrorType() != result.OptimisticLockingError {
		t.Errorf("expected classification to be kept, got %s", f.ErrorType())
	}
	if f.RequestedOperation() != result.Update {
		t.Errorf("expected outer operation UPDATE, got %s", f.RequestedOperation())
	}
	if v, _ := f.AboutValue("batch"); v != "7" {
		t.Errorf("expected batch=7, got %q", v)
	}
	if v, _ := f.AboutValue("oid"); v != "A" {
		t.Errorf("expected inner about oid=A to be kept, got %q", v)
	}
}

func TestBecauseUnclassifiedIsServerError(t *testing.T) {
	cause := errors.New("disk on fire")
	res := result.ForEntity[*person]("person").NotCreated().Because(cause).About("A").Build()

	f, _ := res.AsError()
	if f.ErrorType() != result.ServerError {
		t.Errorf("expected SERVER_ERROR, got %s", f.ErrorType())
	}
	if !errors.Is(f, cause) {
		t.Error("expected fault to wrap the cause")
	}
}

func TestBecauseErrorType(t *testing.T) {
	res := result.ForEntity[*person]("person").NotCreated().Because(result.EntityNotValid).About("A").Build()

	f, _ := res.AsError()
	if f.ErrorType() != result.EntityNotValid {
		t.Errorf("expected ENTITY_NOT_VALID, got %s", f.ErrorType())
	}
}

// --- About ---

func TestAboutVariants(t *testing.T) {
	b := result.ForEntity[*person]("person").NotLoaded().BecauseClientRequestedEntityWasNOTFound()

	versioned, _ := b.AboutVersion("A", "v2").Build().AsError()
	if v, _ := versioned.AboutValue("version"); v != "v2" {
		t.Errorf("expected version v2, got %q", v)
	}

	keyed, _ := b.AboutKey("email", "a@b.c").And("tenant", 9).Build().AsError()
	details := keyed.About()
	if len(details) != 2 || details[0].Key != "email" || details[1].Value != "9" {
		t.Errorf("expected [email tenant] details, got %v", details)
	}
	if keyed.ErrorType() != result.EntityNotFound {
		t.Errorf("expected about not to alter error type, got %s", keyed.ErrorType())
	}
}

func TestBuilderStepsDoNotShareState(t *testing.T) {
	base := result.ForEntity[*person]("person").NotLoaded().BecauseClientRequestedEntityWasNOTFound().About("A")

	first, _ := base.And("x", 1).Build().AsError()
	second, _ := base.And("y", 2).Build().AsError()

	if _, ok := first.AboutValue("y"); ok {
		t.Error("expected first fault not to see details added to a sibling builder")
	}
	if _, ok := second.AboutValue("x"); ok {
		t.Error("expected second fault not to see details added to a sibling builder")
	}
}

func TestExtendedErrorCode(t *testing.T) {
	res := result.ForEntity[*person]("person").
		NotUpdated().
		BecauseTargetEntityWasInAnIllegalStatus("archived").
		About("A").
		BuildWithExtendedErrorCode(4711)

	f, _ := res.AsError()
	code, ok := f.ExtendedCode()
	if !ok || code != 4711 {
		t.Errorf("expected extended code 4711, got %d (%v)", code, ok)
	}

	plain, _ := result.ForEntity[*person]("person").NotUpdated().BecauseServerError(nil).About("A").Build().AsError()
	if _, ok := plain.ExtendedCode(); ok {
		t.Error("expected no extended code")
	}
}

// --- Find shapes ---

func TestFindNeverReturnsNilCollections(t *testing.T) {
	entities := result.ForFind[*person]("person").Found().Entities(nil)
	if v := entities.MustGet(); v == nil || len(v) != 0 {
		t.Errorf("expected empty entity slice, got %#v", v)
	}

	oids := result.ForOIDs("person").Found().OIDs(nil)
	if v := oids.MustGet(); v == nil {
		t.Error("expected empty OID slice, got nil")
	}

	summaries := result.ForSummaries[string]("person").Found().Summaries(nil)
	if v := summaries.MustGet(); v == nil {
		t.Error("expected empty summary slice, got nil")
	}
}

func TestFindOperations(t *testing.T) {
	res := result.ForOIDs("person").Found().OIDs([]model.OID{"A", "B"})
	ok, _ := res.AsOK()
	if ok.RequestedOperation() != result.Find || ok.PerformedOperation() != result.Found {
		t.Errorf("expected FIND/FOUND, got %s/%s", ok.RequestedOperation(), ok.PerformedOperation())
	}
	if len(ok.Value()) != 2 {
		t.Errorf("expected 2 OIDs, got %d", len(ok.Value()))
	}

	failed := result.ForFind[*person]("person").Failed().BecauseClientBadRequest("unknown query %q", "byX").AboutKey("query", "byX").Build()
	if !failed.HasFailed() {
		t.Error("expected failed find")
	}
}

func TestCountAndExec(t *testing.T) {
	n, err := result.ForCount("person").Counted(42).GetOrError()
	if err != nil || n != 42 {
		t.Errorf("expected 42, got %d (%v)", n, err)
	}

	notCounted := result.ForCount("person").NotCounted().BecauseServerError(errors.New("timeout")).AboutKey("query", "all").Build()
	if notCounted.HasSucceeded() {
		t.Error("expected count failure")
	}

	v := result.ForExec[bool]("person").Executed(result.Other, result.Updated).Value(true)
	if !v.MustGet() {
		t.Error("expected true")
	}

	e := result.ForExec[bool]("person").NotExecuted(result.Other).BecauseTargetEntityWasInAnIllegalStatus("frozen").About("A").Build()
	if f, _ := e.AsError(); f.RequestedOperation() != result.Other {
		t.Errorf("expected OTHER, got %s", f.RequestedOperation())
	}
}

func TestRetypeKeepsFault(t *testing.T) {
	res := result.ForEntity[*person]("person").NotLoaded().BecauseClientRequestedEntityWasNOTFound().About("A").Build()
	moved := result.Retype[int64](res)

	if result.ErrorOf(moved) != result.ErrorOf(res) {
		t.Error("expected retyped result to share the fault")
	}
	if result.ErrorOf(result.ForCount("person").Counted(1)) != nil {
		t.Error("expected nil fault for OK result")
	}
}

// --- ErrorType ---

func TestErrorTypeStrings(t *testing.T) {
	for et := result.BadRequestData; et <= result.ServerError; et++ {
		parsed, ok := result.ParseErrorType(et.String())
		if !ok || parsed != et {
			t.Errorf("expected %s to parse back, got %s (%v)", et, parsed, ok)
		}
	}
	if _, ok := result.ParseErrorType("NOPE"); ok {
		t.Error("expected unknown name not to parse")
	}
}

func TestErrorTypeHTTPStatus(t *testing.T) {
	tests := []struct {
		et   result.ErrorType
		want int
	}{
		{result.BadRequestData, http.StatusBadRequest},
		{result.EntityNotFound, http.StatusNotFound},
		{result.EntityAlreadyExists, http.StatusConflict},
		{result.OptimisticLockingError, http.StatusPreconditionFailed},
		{result.ServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.et.HTTPStatus(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.et, tt.want, got)
		}
	}
	if result.ServerError.IsBusiness() || !result.EntityNotFound.IsBusiness() {
		t.Error("expected business classification to exclude server errors only")
	}
}

func TestPerformedRequested(t *testing.T) {
	if result.Deleted.Requested() != result.Delete {
		t.Errorf("expected DELETE, got %s", result.Deleted.Requested())
	}
	if result.Found.Requested() != result.Find {
		t.Errorf("expected FIND, got %s", result.Found.Requested())
	}
}
