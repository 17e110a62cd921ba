package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/labportal/internal/client/storage"
)

// SaveCookies заменяет cookie сессии для origin
func (s *Storage) SaveCookies(ctx context.Context, origin string, cookies []storage.Cookie) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSessions)
		if bucket == nil {
			return fmt.Errorf("sessions bucket not found")
		}

		// Пустой набор равносилен удалению сессии
		if len(cookies) == 0 {
			return bucket.Delete([]byte(origin))
		}

		data, err := json.Marshal(cookies)
		if err != nil {
			return fmt.Errorf("failed to marshal cookies: %w", err)
		}

		if err := bucket.Put([]byte(origin), data); err != nil {
			return fmt.Errorf("failed to save cookies: %w", err)
		}
		return nil
	})
}

// LoadCookies возвращает сохраненные cookie для origin
func (s *Storage) LoadCookies(ctx context.Context, origin string) ([]storage.Cookie, error) {
	var cookies []storage.Cookie

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSessions)
		if bucket == nil {
			return fmt.Errorf("sessions bucket not found")
		}

		data := bucket.Get([]byte(origin))
		if data == nil {
			return storage.ErrSessionNotFound
		}

		if err := json.Unmarshal(data, &cookies); err != nil {
			return fmt.Errorf("failed to unmarshal cookies: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cookies, nil
}

// DeleteCookies удаляет сессию для origin. Отсутствие сессии не ошибка.
func (s *Storage) DeleteCookies(ctx context.Context, origin string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSessions)
		if bucket == nil {
			return fmt.Errorf("sessions bucket not found")
		}

		if err := bucket.Delete([]byte(origin)); err != nil {
			return fmt.Errorf("failed to delete cookies: %w", err)
		}
		return nil
	})
}
