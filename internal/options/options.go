package options

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/uci"
)

const (
	Hash         = "Hash"
	Ponder       = "Ponder"
	ClearHash    = "Clear Hash"
	MoveOverhead = "Move Overhead"
	AnalyseMode  = "UCI_AnalyseMode"
	Style        = "Style"
	DebugLogFile = "Debug Log File"
)

// Definition declares one option. OnChange runs after a value is accepted,
// or when a button is pressed (with an empty value).
type Definition struct {
	Name     string
	Type     uci.OptionType
	Default  string
	Min      int
	Max      int
	Vars     []string
	OnChange func(value string)
}

func Check(name string, defaultValue bool) Definition {
	return Definition{Name: name, Type: uci.CheckType, Default: strconv.FormatBool(defaultValue)}
}

func Spin(name string, defaultValue, min, max int) Definition {
	return Definition{Name: name, Type: uci.SpinType, Default: strconv.Itoa(defaultValue), Min: min, Max: max}
}

func Combo(name string, defaultValue string, vars ...string) Definition {
	return Definition{Name: name, Type: uci.ComboType, Default: defaultValue, Vars: vars}
}

func String(name string, defaultValue string) Definition {
	return Definition{Name: name, Type: uci.StringType, Default: defaultValue}
}

func Button(name string, onPress func()) Definition {
	return Definition{Name: name, Type: uci.ButtonType, OnChange: func(string) { onPress() }}
}

func (d Definition) WithOnChange(f func(value string)) Definition {
	d.OnChange = f
	return d
}

// Declaration is the "option" line advertised after "uci".
func (d Definition) Declaration() uci.Option {
	result := uci.Option{Name: d.Name, Type: d.Type}
	switch d.Type {
	case uci.ButtonType:
	case uci.SpinType:
		result.Default = Some(d.Default)
		result.Min = Some(d.Min)
		result.Max = Some(d.Max)
	case uci.ComboType:
		result.Default = Some(d.Default)
		result.Vars = d.Vars
	default:
		result.Default = Some(d.Default)
	}
	return result
}

// Standard is the option set every engine built on this module declares.
func Standard(hashMB int, moveOverheadMs int) []Definition {
	return []Definition{
		Spin(Hash, hashMB, 1, 1024),
		Check(Ponder, false),
		Button(ClearHash, func() {}),
		Spin(MoveOverhead, moveOverheadMs, 0, 5000),
		Check(AnalyseMode, false),
		Combo(Style, "Normal", "Solid", "Normal", "Risky"),
		String(DebugLogFile, ""),
	}
}

type RejectedError struct {
	Name   string
	Value  Optional[string]
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Value.HasValue() {
		return fmt.Sprintf("option %q rejected value %q: %v", e.Name, e.Value.Value(), e.Reason)
	}
	return fmt.Sprintf("option %q rejected: %v", e.Name, e.Reason)
}

// Registry holds the current value of every declared option. Names are
// matched case-insensitively.
type Registry struct {
	mu     sync.Mutex
	defs   []Definition
	values map[string]string
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{values: map[string]string{}}
	for _, d := range defs {
		r.Declare(d)
	}
	return r
}

// Declare adds an option, replacing any earlier definition with the same name.
func (r *Registry) Declare(d Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(d.Name)
	for i := range r.defs {
		if strings.ToLower(r.defs[i].Name) == key {
			r.defs[i] = d
			if d.Type != uci.ButtonType {
				r.values[key] = d.Default
			}
			return
		}
	}
	r.defs = append(r.defs, d)
	if d.Type != uci.ButtonType {
		r.values[key] = d.Default
	}
}

// OnChange attaches a handler to an already declared option.
func (r *Registry) OnChange(name string, f func(value string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.find(name); ok {
		r.defs[i].OnChange = f
	}
}

func (r *Registry) find(name string) (int, bool) {
	key := strings.ToLower(name)
	for i := range r.defs {
		if strings.ToLower(r.defs[i].Name) == key {
			return i, true
		}
	}
	return -1, false
}

func (r *Registry) Declarations() []uci.Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return MapSlice(r.defs, Definition.Declaration)
}

// Set validates and stores a value. On error the registry is unchanged.
func (r *Registry) Set(name string, value Optional[string]) error {
	r.mu.Lock()
	i, ok := r.find(name)
	if !ok {
		r.mu.Unlock()
		return &RejectedError{Name: name, Value: value, Reason: "unknown option"}
	}
	def := r.defs[i]

	normalized, err := def.validate(value)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if def.Type != uci.ButtonType {
		r.values[strings.ToLower(def.Name)] = normalized
	}
	r.mu.Unlock()

	if def.OnChange != nil {
		def.OnChange(normalized)
	}
	return nil
}

func (d Definition) validate(value Optional[string]) (string, error) {
	reject := func(reason string) (string, error) {
		return "", &RejectedError{Name: d.Name, Value: value, Reason: reason}
	}

	switch d.Type {
	case uci.ButtonType:
		return "", nil
	case uci.StringType:
		s := value.ValueOr("")
		if s == "<empty>" {
			s = ""
		}
		return s, nil
	}

	if value.IsEmpty() {
		return reject("missing value")
	}
	s := value.Value()

	switch d.Type {
	case uci.CheckType:
		b, err := strconv.ParseBool(strings.ToLower(s))
		if err != nil {
			return reject("expected true or false")
		}
		return strconv.FormatBool(b), nil
	case uci.SpinType:
		n, err := strconv.Atoi(s)
		if err != nil {
			return reject("expected an integer")
		}
		if n < d.Min || n > d.Max {
			return reject(fmt.Sprintf("out of range [%d, %d]", d.Min, d.Max))
		}
		return strconv.Itoa(n), nil
	case uci.ComboType:
		match := FindInSlice(d.Vars, func(v string) bool {
			return strings.EqualFold(v, s)
		})
		if !match.IsEmpty() {
			return match.Value(), nil
		}
		return reject(fmt.Sprintf("expected one of %v", strings.Join(d.Vars, ", ")))
	}
	return reject(fmt.Sprintf("unsupported type %v", d.Type))
}

// Snapshot copies the current values. Later Set calls don't affect it.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	values := make(map[string]string, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return Snapshot{values: values}
}

// Snapshot is an immutable view of option values handed to a search.
type Snapshot struct {
	values map[string]string
}

func (s Snapshot) Get(name string) Optional[string] {
	v, ok := s.values[strings.ToLower(name)]
	if !ok {
		return Empty[string]()
	}
	return Some(v)
}

func (s Snapshot) Check(name string) bool {
	b, _ := strconv.ParseBool(s.Get(name).ValueOr("false"))
	return b
}

// Spin returns fallback when the option is not declared.
func (s Snapshot) Spin(name string, fallback int) int {
	n, err := strconv.Atoi(s.Get(name).ValueOr(""))
	if err != nil {
		return fallback
	}
	return n
}

func (s Snapshot) Text(name string) string {
	return s.Get(name).ValueOr("")
}
