package catalog

import (
	"math"
	"sort"

	"TrackLens/model"
)

// TopN is the number of keys and moods reported in Stats.
const TopN = 5

// Stats summarises the catalog.
type Stats struct {
	TotalTracks   int      `json:"total_tracks"`
	AvgBPM        float64  `json:"avg_bpm"`
	CommonKeys    []string `json:"common_keys"`
	CommonMoods   []string `json:"common_moods"`
	TotalDuration float64  `json:"total_duration"`
}

// ComputeStats aggregates tracks. Frequency ties are broken
// lexicographically so results do not depend on storage order.
func ComputeStats(tracks []*model.Track) Stats {
	stats := Stats{CommonKeys: []string{}, CommonMoods: []string{}}
	if len(tracks) == 0 {
		return stats
	}

	var bpmSum, durSum float64
	keyCounts := map[string]int{}
	moodCounts := map[string]int{}
	for _, t := range tracks {
		bpmSum += t.BPM
		durSum += t.Duration
		keyCounts[t.Key]++
		for _, m := range t.MoodTags {
			moodCounts[m]++
		}
	}

	stats.TotalTracks = len(tracks)
	stats.AvgBPM = round2(bpmSum / float64(len(tracks)))
	stats.TotalDuration = round2(durSum)
	stats.CommonKeys = mostCommon(keyCounts, TopN)
	stats.CommonMoods = mostCommon(moodCounts, TopN)
	return stats
}

func mostCommon(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
