package triage

// Bucket is one labeled count of an aggregate.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CountByCategory counts complaints per category label in first-seen order.
func CountByCategory(complaints []Complaint) []Bucket {
	return countBy(complaints, Complaint.CategoryLabel)
}

// CountByUrgency counts complaints per urgency label in first-seen order.
func CountByUrgency(complaints []Complaint) []Bucket {
	return countBy(complaints, Complaint.UrgencyLabel)
}

func countBy(complaints []Complaint, label func(Complaint) string) []Bucket {
	buckets := make([]Bucket, 0)
	index := make(map[string]int)
	for _, c := range complaints {
		l := label(c)
		if i, ok := index[l]; ok {
			buckets[i].Count++
			continue
		}
		index[l] = len(buckets)
		buckets = append(buckets, Bucket{Label: l, Count: 1})
	}
	return buckets
}

// BucketTotal sums the counts of buckets.
func BucketTotal(buckets []Bucket) int {
	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	return total
}
