package observability

import "sync"

// Entry is one message captured by a Recorder.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

// Recorder keeps every message in memory. Loggers derived with With share
// the same entry list.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	base    []Field
}

func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (r *Recorder) Debug(msg string, fields ...Field) { r.add("debug", msg, fields) }
func (r *Recorder) Info(msg string, fields ...Field)  { r.add("info", msg, fields) }
func (r *Recorder) Warn(msg string, fields ...Field)  { r.add("warn", msg, fields) }
func (r *Recorder) Error(msg string, fields ...Field) { r.add("error", msg, fields) }

func (r *Recorder) With(fields ...Field) Logger {
	base := append(append([]Field(nil), r.base...), fields...)
	return &Recorder{mu: r.mu, entries: r.entries, base: base}
}

func (r *Recorder) add(level, msg string, fields []Field) {
	e := Entry{Level: level, Msg: msg, Fields: make(map[string]interface{})}
	for _, f := range r.base {
		e.Fields[f.Key()] = f.Value()
	}
	for _, f := range fields {
		e.Fields[f.Key()] = f.Value()
	}
	r.mu.Lock()
	*r.entries = append(*r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of the captured messages.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), (*r.entries)...)
}
