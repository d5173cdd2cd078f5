package filter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/semihalev/zlog/v2"

	"github.com/dnsgate/dnsgate/nametree"
)

// loadRules reads every file into one tree. Lines hold one domain suffix;
// a '#' starts a comment, blank lines are skipped, invalid lines are
// logged and skipped.
func loadRules(files []string) (*nametree.Tree, error) {
	tree := nametree.New()

	for _, path := range files {
		loaded, err := loadRuleFile(tree, path)
		if err != nil {
			return nil, fmt.Errorf("rules %s: %w", path, err)
		}
		zlog.Info("Rules loaded", "path", path, "count", loaded)
	}

	if tree.Size() > 0 {
		zlog.Info("Rule tree generated", "entries", tree.Size(), "memory", formatMemory(tree.MemoryEstimate()))
	}
	return tree, nil
}

func loadRuleFile(tree *nametree.Tree, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch err := tree.Add(line); {
		case err == nil:
			count++
		case errors.Is(err, nametree.ErrDuplicated):
			zlog.Warn("Duplicated rule", "path", path, "rule", line)
		default:
			zlog.Warn("Invalid rule", "path", path, "rule", line)
		}
	}

	return count, scanner.Err()
}

func formatMemory(bytes int) string {
	switch {
	case bytes > 1<<20:
		return fmt.Sprintf("%.2fMiB", float64(bytes)/(1<<20))
	case bytes > 1<<10:
		return fmt.Sprintf("%.2fKiB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
