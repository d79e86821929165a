package progress

// Callback observes a full update run.
type Callback interface {
	// Starting is called once before any target work with the number of
	// targets that will be started.
	Starting(expected int)
	// Start is called once per target, before any work for it, with the
	// version currently installed ("" when none). The returned Session
	// receives the target's terminal call.
	Start(target string, localVersion string) Session
	// Finished is called once after all targets have terminated.
	Finished()
}

// Session receives exactly one terminal call for its target.
type Session interface {
	CompleteWithCriticalUpdate(pendingVersion string)
	CompleteWithNonCriticalUpdate(pendingVersion string)
	CompleteNoUpdate()
	Fail(message string)
}

// Report delivers o to the session, using version for the update outcomes and
// message for Failed.
func Report(s Session, o Outcome, version, message string) {
	switch o {
	case CriticalUpdate:
		s.CompleteWithCriticalUpdate(version)
	case NonCriticalUpdate:
		s.CompleteWithNonCriticalUpdate(version)
	case NoUpdate:
		s.CompleteNoUpdate()
	default:
		s.Fail(message)
	}
}

var (
	_ Callback = (*CallbackFuncs)(nil)
	_ Session  = (*SessionFuncs)(nil)
)

// CallbackFuncs adapts plain funcs to a Callback, any nil func is skipped. A
// nil StartFunc, or one returning nil, yields a Session that discards its
// terminal call.
type CallbackFuncs struct {
	StartingFunc func(expected int)
	StartFunc    func(target, localVersion string) Session
	FinishedFunc func()
}

func (fn *CallbackFuncs) Starting(expected int) {
	if fn.StartingFunc != nil {
		fn.StartingFunc(expected)
	}
}

func (fn *CallbackFuncs) Start(target, localVersion string) Session {
	if fn.StartFunc != nil {
		if s := fn.StartFunc(target, localVersion); s != nil {
			return s
		}
	}
	return &SessionFuncs{}
}

func (fn *CallbackFuncs) Finished() {
	if fn.FinishedFunc != nil {
		fn.FinishedFunc()
	}
}

// SessionFuncs adapts a single func to a Session. OutcomeFunc receives the
// outcome along with the pending version for updates or the failure message.
type SessionFuncs struct {
	OutcomeFunc func(o Outcome, detail string)
}

func (fn *SessionFuncs) CompleteWithCriticalUpdate(pendingVersion string) {
	fn.outcome(CriticalUpdate, pendingVersion)
}

func (fn *SessionFuncs) CompleteWithNonCriticalUpdate(pendingVersion string) {
	fn.outcome(NonCriticalUpdate, pendingVersion)
}

func (fn *SessionFuncs) CompleteNoUpdate() {
	fn.outcome(NoUpdate, "")
}

func (fn *SessionFuncs) Fail(message string) {
	fn.outcome(Failed, message)
}

func (fn *SessionFuncs) outcome(o Outcome, detail string) {
	if fn.OutcomeFunc != nil {
		fn.OutcomeFunc(o, detail)
	}
}
