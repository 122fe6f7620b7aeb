package controller

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultRegistrySize bounds how many task boards stay in memory.
const DefaultRegistrySize = 256

// Registry keeps one TaskBoard per signed-in user. The least recently used
// board is evicted once the registry is full; an evicted user simply gets a
// fresh board that reloads on the next request.
type Registry struct {
	mu         sync.Mutex
	boards     *lru.Cache
	tasks      TaskService
	proofEmail string
	logger     *slog.Logger
}

func NewRegistry(size int, tasks TaskService, proofEmail string, logger *slog.Logger) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("controller: creating board registry: %w", err)
	}
	return &Registry{boards: cache, tasks: tasks, proofEmail: proofEmail, logger: logger}, nil
}

// Board returns userID's board, creating it on first use. fresh is true when
// the board was just created and has not loaded yet.
func (r *Registry) Board(userID string) (board *TaskBoard, fresh bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.boards.Get(userID); ok {
		return v.(*TaskBoard), false
	}
	b := NewTaskBoard(userID, r.tasks, r.proofEmail, r.logger)
	r.boards.Add(userID, b)
	return b, true
}

// Drop forgets userID's board (on sign-out).
func (r *Registry) Drop(userID string) {
	r.boards.Remove(userID)
}

func (r *Registry) Len() int { return r.boards.Len() }
