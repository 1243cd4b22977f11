package resolver

import (
	"context"
	"strconv"
)

// nextFreeSlug returns base when free, else the first free base-N for N ≥ 1.
func nextFreeSlug(base string, taken map[string]struct{}) string {
	if _, used := taken[base]; !used {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if _, used := taken[candidate]; !used {
			return candidate
		}
	}
}

// allocateSlugs assigns a distinct slug to every base, guarding against both
// stored slugs and slugs handed out earlier in the same batch.
func allocateSlugs(bases []string, taken map[string]struct{}) []string {
	out := make([]string, len(bases))
	for i, base := range bases {
		s := nextFreeSlug(base, taken)
		taken[s] = struct{}{}
		out[i] = s
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// entityStore is the write side shared by the person and organization
// repositories.
type entityStore[T any] interface {
	TakenSlugs(ctx context.Context, bases []string) (map[string]struct{}, error)
	NextKeys(ctx context.Context, n int) ([]int64, error)
	InsertBatch(ctx context.Context, items []T) error
	Insert(ctx context.Context, item T) error
}
