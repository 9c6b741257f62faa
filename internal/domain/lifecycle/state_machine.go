// Пакет lifecycle — конечный автомат одного прогона финализации документа.
//
// Прямой путь:
//
//	uploaded → metadata-writing → encrypting → hashing → processed
//
// Из любого промежуточного состояния возможен переход в failed.
// processed и failed — конечные состояния. Для повторной финализации
// создаётся новый автомат.
//
// Потокобезопасен через sync.RWMutex.
package lifecycle

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние прогона финализации.
type State string

const (
	StateUploaded        State = "uploaded"
	StateMetadataWriting State = "metadata-writing"
	StateEncrypting      State = "encrypting"
	StateHashing         State = "hashing"
	StateProcessed       State = "processed"
	StateFailed          State = "failed"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateUploaded:        {StateMetadataWriting: true},
	StateMetadataWriting: {StateEncrypting: true, StateFailed: true},
	StateEncrypting:      {StateHashing: true, StateFailed: true},
	StateHashing:         {StateProcessed: true, StateFailed: true},
	StateProcessed:       {},
	StateFailed:          {},
}

// StateMachine — автомат одного прогона финализации.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
	// failedAt — состояние, в котором произошла ошибка
	failedAt State
}

// New создаёт автомат в состоянии uploaded.
func New() *StateMachine {
	return &StateMachine{
		current: StateUploaded,
		history: make([]TransitionRecord, 0, 4),
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// CanTransitionTo проверяет, допустим ли переход.
func (sm *StateMachine) CanTransitionTo(target State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return validTransitions[sm.current][target]
}

// Advance переводит автомат в следующее состояние.
func (sm *StateMachine) Advance(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidState(target) {
		return &TransitionError{From: sm.current, To: target, Message: "недопустимое целевое состояние"}
	}
	if !validTransitions[sm.current][target] {
		return &TransitionError{From: sm.current, To: target, Message: "переход недопустим"}
	}

	if target == StateFailed {
		sm.failedAt = sm.current
	}
	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
	return nil
}

// Fail переводит автомат в failed из любого нетерминального состояния.
// Возвращает false, если автомат уже в конечном состоянии.
func (sm *StateMachine) Fail() bool {
	return sm.Advance(StateFailed) == nil
}

// FailedAt возвращает состояние, в котором прогон завершился ошибкой.
func (sm *StateMachine) FailedAt() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.failedAt
}

// IsTerminal проверяет, находится ли автомат в конечном состоянии.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(validTransitions[sm.current]) == 0
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	From    State
	To      State
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s → %s: %s", e.From, e.To, e.Message)
}

func isValidState(s State) bool {
	_, ok := validTransitions[s]
	return ok
}

// ParseState преобразует строку в State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !isValidState(st) {
		return "", fmt.Errorf("недопустимое состояние конвейера: %q", s)
	}
	return st, nil
}
