package corpus

const personLabel = "person"

type Stats struct {
	TotalFrames    int            `json:"total_frames"`
	PeopleDetected int            `json:"total_people_detected"`
	ObjectCounts   map[string]int `json:"object_counts"`
	UniqueObjects  int            `json:"unique_objects"`
}

// Stats counts labels over every stored frame.
func (c *Corpus) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		TotalFrames:  len(c.frames),
		ObjectCounts: make(map[string]int),
	}
	for _, f := range c.frames {
		for _, l := range f.Labels {
			s.ObjectCounts[l]++
			if l == personLabel {
				s.PeopleDetected++
			}
		}
	}
	s.UniqueObjects = len(s.ObjectCounts)
	return s
}
