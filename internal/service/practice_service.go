package service

import (
	"errors"
	"sync"
	"time"

	"crypto_arena/internal/metrics"
	"crypto_arena/internal/session"

	"github.com/google/uuid"
)

var (
	ErrGameInProgress = errors.New("у вас уже есть активная игра")
	ErrNoActiveGame   = errors.New("нет активной игры")
	ErrUnknownKind    = errors.New("неизвестный тип игры")
	ErrBadChoice      = errors.New("нелегальный ход")
)

type practiceGame struct {
	engine    *session.Engine
	createdAt time.Time
}

// управляет активными тренировочными играми (против дома, без пира)
type PracticeService struct {
	activeGames map[int64]*practiceGame // userID -> game
	mu          sync.RWMutex
}

// создает новый тренировочный сервис
func NewPracticeService() *PracticeService {
	s := &PracticeService{
		activeGames: make(map[int64]*practiceGame),
	}

	// запускаем горутину для очистки устаревших игр
	go s.cleanupExpiredGames()

	return s
}

// начинает новую тренировочную игру
func (s *PracticeService) StartGame(userID int64, kindName session.GameKind, amount, odds, tokenType string) (map[string]any, error) {
	kind, ok := session.KindByName(kindName)
	if !ok {
		return nil, ErrUnknownKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// проверяем, есть ли у пользователя уже активная игра
	if g, ok := s.activeGames[userID]; ok && g.engine.State() != session.StateTerminated {
		return nil, ErrGameInProgress
	}

	gameID := uuid.New().String()[:8]
	engine, err := session.NewPractice(gameID, kind, session.Stake{
		Amount:         amount,
		TokenType:      tokenType,
		OddsMultiplier: odds,
	})
	if err != nil {
		return nil, err
	}

	s.activeGames[userID] = &practiceGame{engine: engine, createdAt: time.Now()}
	metrics.ActivePracticeGames.Inc()
	return engine.Snapshot(), nil
}

// выполняет ход в активной игре пользователя
func (s *PracticeService) SubmitChoice(userID int64, choice string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.activeGames[userID]
	if !ok || g.engine.State() == session.StateTerminated {
		return nil, ErrNoActiveGame
	}

	if !g.engine.Tick() {
		// время вышло — игра завершилась сама
		s.dropLocked(userID)
		return g.engine.Snapshot(), nil
	}

	if !g.engine.SubmitChoice(choice) {
		return nil, ErrBadChoice
	}
	return g.engine.Snapshot(), nil
}

// запрашивает следующий раунд после показанного результата
func (s *PracticeService) Rematch(userID int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.activeGames[userID]
	if !ok || g.engine.State() == session.StateTerminated {
		return nil, ErrNoActiveGame
	}

	if !g.engine.RequestRematch() {
		return nil, ErrNoActiveGame
	}
	return g.engine.Snapshot(), nil
}

// возвращает состояние активной игры пользователя, пересчитав таймер
func (s *PracticeService) GameState(userID int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.activeGames[userID]
	if !ok {
		return nil, ErrNoActiveGame
	}

	if !g.engine.Tick() {
		s.dropLocked(userID)
	}
	return g.engine.Snapshot(), nil
}

// досрочно завершает активную игру пользователя
func (s *PracticeService) LeaveGame(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.activeGames[userID]
	if !ok {
		return ErrNoActiveGame
	}
	g.engine.Leave()
	s.dropLocked(userID)
	return nil
}

// возвращает количество активных игр
func (s *PracticeService) ActiveGamesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activeGames)
}

// удаляет игру из учета. Вызывающий должен удерживать s.mu.
func (s *PracticeService) dropLocked(userID int64) {
	if _, ok := s.activeGames[userID]; ok {
		delete(s.activeGames, userID)
		metrics.ActivePracticeGames.Dec()
	}
}

// удаляет игры старше 1 часа
func (s *PracticeService) cleanupExpiredGames() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for userID, g := range s.activeGames {
			if now.Sub(g.createdAt) > time.Hour {
				s.dropLocked(userID)
			}
		}
		s.mu.Unlock()
	}
}
