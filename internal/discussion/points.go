package discussion

import "github.com/ent0n29/roundtable/internal/personas"

// PointsPerAgent is how many talking points are prepared for each persona.
const PointsPerAgent = 10

// TalkingPointSet maps each persona to its cyclic list of talking points.
type TalkingPointSet map[personas.ID][]string

// PadPoints repeats points cyclically until the list holds at least n entries.
// An empty input stays empty.
func PadPoints(points []string, n int) []string {
	if len(points) == 0 {
		return nil
	}
	out := make([]string, 0, max(n, len(points)))
	out = append(out, points...)
	for i := 0; len(out) < n; i++ {
		out = append(out, points[i%len(points)])
	}
	return out
}

// PointCursors tracks how many points each persona has consumed.
type PointCursors map[personas.ID]int

// Peek returns the point the persona would use next. The cursor wraps modulo
// the list length; index is -1 when the persona has no points.
func (c PointCursors) Peek(set TalkingPointSet, id personas.ID) (index int, point string) {
	points := set[id]
	if len(points) == 0 {
		return -1, ""
	}
	index = c[id] % len(points)
	return index, points[index]
}

func (c PointCursors) Advance(id personas.ID) {
	c[id]++
}

func (c PointCursors) clone() map[personas.ID]int {
	out := make(map[personas.ID]int, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
