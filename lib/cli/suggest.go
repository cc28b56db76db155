// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// suggestionLimit is the largest edit distance still offered as a
// "did you mean" hint.
const suggestionLimit = 3

func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, len(commands))
	for i, command := range commands {
		names[i] = command.Name
	}
	return nearest(unknown, names)
}

// suggestFlag returns the defined flag nearest to the first undefined
// one in args, dashes included, or "" when nothing is close enough.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	unknown := firstUnknownFlag(args, flagSet)
	if unknown == "" {
		return ""
	}
	var names []string
	flagSet.VisitAll(func(f *pflag.Flag) { names = append(names, f.Name) })
	if best := nearest(unknown, names); best != "" {
		return "--" + best
	}
	return ""
}

// firstUnknownFlag scans args up to "--" and returns the bare name of
// the first flag flagSet does not know.
func firstUnknownFlag(args []string, flagSet *pflag.FlagSet) string {
	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if flagSet.Lookup(name) != nil {
			continue
		}
		if len(name) == 1 && flagSet.ShorthandLookup(name) != nil {
			continue
		}
		return name
	}
	return ""
}

// nearest picks the candidate with the smallest edit distance to input,
// the earliest on ties, within suggestionLimit.
func nearest(input string, candidates []string) string {
	best, bestDistance := "", suggestionLimit+1
	for _, candidate := range candidates {
		if distance := levenshtein(input, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// levenshtein counts single-rune insertions, deletions and
// substitutions between a and b.
func levenshtein(a, b string) int {
	source, target := []rune(a), []rune(b)
	if len(source) < len(target) {
		source, target = target, source
	}
	above := make([]int, len(target)+1)
	row := make([]int, len(target)+1)
	for j := range above {
		above[j] = j
	}
	for i, r := range source {
		row[0] = i + 1
		for j, s := range target {
			substitute := above[j]
			if r != s {
				substitute++
			}
			row[j+1] = min(above[j+1]+1, row[j]+1, substitute)
		}
		above, row = row, above
	}
	return above[len(target)]
}
