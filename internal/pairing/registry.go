// Package pairing keeps the group -> front chat associations and the
// derived set of every chat used as a front.
package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"spamfightbot/internal/constants"
	"spamfightbot/internal/errors"
	"spamfightbot/internal/models"
	"spamfightbot/internal/storage"
)

// Registry stores pairings as str(group_id) -> front_id. Every mutation
// writes the pairing and the recomputed front set under
// constants.FrontGroupsKey in one store batch. Mutations from the event
// loop and the admin API are serialized.
type Registry struct {
	mu    sync.Mutex
	store storage.Store
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{store: store}
}

// Pair associates group with front, replacing any previous front
func (r *Registry) Pair(ctx context.Context, groupID, frontID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pairs, err := r.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to pair %d with %d: %w", groupID, frontID, err)
	}
	pairs[groupID] = frontID

	fronts, err := encodeFronts(pairs)
	if err != nil {
		return err
	}
	sets := map[string]string{
		groupKey(groupID):        strconv.FormatInt(frontID, 10),
		constants.FrontGroupsKey: fronts,
	}
	if err := r.store.Apply(ctx, sets, nil); err != nil {
		return fmt.Errorf("failed to pair %d with %d: %w", groupID, frontID, err)
	}
	return nil
}

// Lookup returns the front paired with group
func (r *Registry) Lookup(ctx context.Context, groupID int64) (int64, bool, error) {
	raw, ok, err := r.store.Get(ctx, groupKey(groupID))
	if err != nil || !ok {
		return 0, false, err
	}
	frontID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "corrupt pairing value").
			WithContext("group_id", groupID).
			WithContext("value", raw)
	}
	return frontID, true, nil
}

// Unpair forgets group. Unknown groups are ignored.
func (r *Registry) Unpair(ctx context.Context, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pairs, err := r.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to unpair %d: %w", groupID, err)
	}
	if _, ok := pairs[groupID]; !ok {
		return nil
	}
	delete(pairs, groupID)

	fronts, err := encodeFronts(pairs)
	if err != nil {
		return err
	}
	sets := map[string]string{constants.FrontGroupsKey: fronts}
	if err := r.store.Apply(ctx, sets, []string{groupKey(groupID)}); err != nil {
		return fmt.Errorf("failed to unpair %d: %w", groupID, err)
	}
	return nil
}

// IsKnownFront reports whether chat is the front of any pairing
func (r *Registry) IsKnownFront(ctx context.Context, chatID int64) (bool, error) {
	fronts, err := r.Fronts(ctx)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(fronts, chatID)
	return found, nil
}

// Fronts returns the persisted front set, sorted ascending
func (r *Registry) Fronts(ctx context.Context) ([]int64, error) {
	raw, ok, err := r.store.Get(ctx, constants.FrontGroupsKey)
	if err != nil || !ok {
		return nil, err
	}
	var fronts []int64
	if err := json.Unmarshal([]byte(raw), &fronts); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "corrupt front set")
	}
	slices.Sort(fronts)
	return fronts, nil
}

// List returns every pairing ordered by group id
func (r *Registry) List(ctx context.Context) ([]models.Pair, error) {
	all, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make([]models.Pair, 0, len(all))
	for groupID, frontID := range all {
		pairs = append(pairs, models.Pair{GroupID: groupID, FrontID: frontID})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].GroupID < pairs[j].GroupID })
	return pairs, nil
}

// load reads every well-formed pairing. Keys that are not group ids, such
// as the front set, are skipped.
func (r *Registry) load(ctx context.Context) (map[int64]int64, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make(map[int64]int64, len(all))
	for key, value := range all {
		if key == constants.FrontGroupsKey {
			continue
		}
		groupID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		frontID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		pairs[groupID] = frontID
	}
	return pairs, nil
}

func encodeFronts(pairs map[int64]int64) (string, error) {
	fronts := make([]int64, 0, len(pairs))
	for _, frontID := range pairs {
		fronts = append(fronts, frontID)
	}
	slices.Sort(fronts)
	fronts = slices.Compact(fronts)

	encoded, err := json.Marshal(fronts)
	if err != nil {
		return "", fmt.Errorf("failed to encode front set: %w", err)
	}
	return string(encoded), nil
}

func groupKey(groupID int64) string {
	return strconv.FormatInt(groupID, 10)
}
