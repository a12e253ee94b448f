package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rocketscienceinc/tictactoe-grid/internal/entity"
	bolt "go.etcd.io/bbolt"
)

var standingsBucket = []byte("standings")

type ScoreRepository interface {
	RecordResult(ctx context.Context, x, o entity.Player, status entity.Status) error
	Standings(ctx context.Context, limit int) ([]entity.Standing, error)
}

type dbScore struct {
	db *bolt.DB
}

func NewScoreRepository(db *bolt.DB) ScoreRepository {
	return &dbScore{
		db: db,
	}
}

// RecordResult - adds a finished game to both players' standings in one transaction.
func (that *dbScore) RecordResult(ctx context.Context, x, o entity.Player, status entity.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a result", entity.ErrUnknownGameStatus, status)
	}

	err := that.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(standingsBucket)
		if err != nil {
			return err
		}

		for _, player := range [...]entity.Player{x, o} {
			standing, err := getStanding(bucket, player.Name)
			if err != nil {
				return err
			}

			switch status.Winner() {
			case entity.MarkNone:
				standing.Draws++
			case player.Mark:
				standing.Wins++
			default:
				standing.Losses++
			}

			if err = putStanding(bucket, standing); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	return nil
}

// Standings - returns players ordered by wins, then fewest losses, then name. A limit
// of zero or less returns everyone.
func (that *dbScore) Standings(ctx context.Context, limit int) ([]entity.Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var standings []entity.Standing

	err := that.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(standingsBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(_, value []byte) error {
			var standing entity.Standing
			if err := json.Unmarshal(value, &standing); err != nil {
				return err
			}

			standings = append(standings, standing)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read standings: %w", err)
	}

	sort.Sort(byResult(standings))
	rank(standings)

	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}

	return standings, nil
}

func getStanding(bucket *bolt.Bucket, name string) (*entity.Standing, error) {
	standing := &entity.Standing{Name: name}

	value := bucket.Get([]byte(name))
	if value == nil {
		return standing, nil
	}

	if err := json.Unmarshal(value, standing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal standing of %q: %w", name, err)
	}

	return standing, nil
}

func putStanding(bucket *bolt.Bucket, standing *entity.Standing) error {
	value, err := json.Marshal(standing)
	if err != nil {
		return fmt.Errorf("failed to marshal standing of %q: %w", standing.Name, err)
	}

	return bucket.Put([]byte(standing.Name), value)
}

// rank assigns positions; players with equal wins and losses share a rank.
func rank(standings []entity.Standing) {
	for i := range standings {
		if i == 0 {
			standings[i].Rank = 1
			continue
		}

		prev := standings[i-1]
		if standings[i].Wins == prev.Wins && standings[i].Losses == prev.Losses {
			standings[i].Rank = prev.Rank
		} else {
			standings[i].Rank = prev.Rank + 1
		}
	}
}

type byResult []entity.Standing

func (s byResult) Len() int      { return len(s) }
func (s byResult) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byResult) Less(i, j int) bool {
	switch {
	case s[i].Wins != s[j].Wins:
		return s[i].Wins > s[j].Wins
	case s[i].Losses != s[j].Losses:
		return s[i].Losses < s[j].Losses
	default:
		return s[i].Name < s[j].Name
	}
}
