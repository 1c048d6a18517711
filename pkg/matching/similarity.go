package matching

// Similarity scores two strings in [0, 1].
type Similarity func(a, b string) float64

// DiceCoefficient is the Sørensen–Dice coefficient over character bigrams with whitespace removed.
// Equal strings score 1; strings shorter than two characters score 0 otherwise.
func DiceCoefficient(a, b string) float64 {
	first := compact(a)
	second := compact(b)

	if string(first) == string(second) {
		return 1
	}
	if len(first) < 2 || len(second) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(first)-1)
	for i := 0; i < len(first)-1; i++ {
		bigrams[[2]rune{first[i], first[i+1]}]++
	}

	intersection := 0
	for i := 0; i < len(second)-1; i++ {
		bg := [2]rune{second[i], second[i+1]}
		if count := bigrams[bg]; count > 0 {
			bigrams[bg] = count - 1
			intersection++
		}
	}

	return 2 * float64(intersection) / float64(len(first)+len(second)-2)
}

func compact(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v', 0x00a0, 0x1680, 0x2028, 0x2029, 0x202f, 0x205f, 0x3000, 0xfeff:
			continue
		}
		if r >= 0x2000 && r <= 0x200a {
			continue
		}
		out = append(out, r)
	}
	return out
}
