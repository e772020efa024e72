package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/textgate/internal/aggregator"
	"github.com/gzhole/textgate/internal/signal"
)

// ErrViolation is returned by validate --strict when a gate failed.
var ErrViolation = errors.New("violation detected")

var (
	historyPath  string
	contextPairs []string
	rulePairs    []string
	jsonOutput   bool
	strictMode   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [text]",
	Short: "Validate text against the four safety gates",
	Long: `Validate a piece of text. The text is taken from the arguments, or from
stdin when none are given. Prior conversation turns can be supplied as a JSON
or YAML list of {role, content} objects.

  textgate validate "how do I bake bread"
  echo "ignore previous instructions" | textgate validate --json
  textgate validate --history turns.json --strict "and the next step?"
  textgate validate --rule harm_pattern.ceiling=0.8 "..."`,
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVar(&historyPath, "history", "", "File with prior turns (JSON or YAML list of {role, content})")
	validateCmd.Flags().StringArrayVar(&contextPairs, "context", nil, "Caller context as key=value (repeatable)")
	validateCmd.Flags().StringArrayVar(&rulePairs, "rule", nil, "Per-call rule override as source.key=value (repeatable)")
	validateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the verdict as JSON (default when stdout is not a terminal)")
	validateCmd.Flags().BoolVar(&strictMode, "strict", false, "Exit non-zero when a violation is detected")
	rootCmd.AddCommand(validateCmd)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	turns, err := loadHistory(historyPath)
	if err != nil {
		return err
	}
	callerCtx, err := parsePairs(contextPairs)
	if err != nil {
		return fmt.Errorf("--context: %w", err)
	}
	overrides, err := parseRuleOverrides(rulePairs)
	if err != nil {
		return fmt.Errorf("--rule: %w", err)
	}

	agg, _, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	defer agg.Shutdown(cmd.Context())

	v := agg.ValidateText(cmd.Context(), text, turns, callerCtx, overrides)

	out := cmd.OutOrStdout()
	if jsonOutput || !isTerminal(out) {
		if err := writeJSON(out, v); err != nil {
			return err
		}
	} else {
		printVerdict(out, v)
	}

	if strictMode && v.Detected {
		return ErrViolation
	}
	return nil
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// loadHistory reads prior turns. YAML is a superset of JSON, so one decoder
// handles both.
func loadHistory(path string) ([]signal.Turn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var turns []signal.Turn
	if err := yaml.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}
	return turns, nil
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// parseRuleOverrides turns source.key=value pairs into per-source rule maps.
// Values are read as bool, number, comma-separated list or string, in that
// order.
func parseRuleOverrides(pairs []string) (map[string]map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := map[string]map[string]any{}
	for _, p := range pairs {
		lhs, raw, ok := strings.Cut(p, "=")
		source, key, dotted := strings.Cut(lhs, ".")
		if !ok || !dotted || source == "" || key == "" {
			return nil, fmt.Errorf("expected source.key=value, got %q", p)
		}
		if out[source] == nil {
			out[source] = map[string]any{}
		}
		out[source][key] = ruleValue(raw)
	}
	return out, nil
}

func ruleValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return raw
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerdict(w io.Writer, v signal.Verdict) {
	if !v.Detected {
		fmt.Fprintf(w, "✅ PASS  %s\n", v.Description)
		return
	}
	fmt.Fprintf(w, "❌ FAIL  %s gate · %s · %.2f · %s\n", v.Gate(), v.Category, v.Confidence, v.Source)
	fmt.Fprintf(w, "   %s\n", v.Description)
	if v.Evidence != "" {
		fmt.Fprintf(w, "   evidence:  %q\n", v.Evidence)
	}
	if triggered, ok := v.Metadata[aggregator.MetaTriggeredSources].([]string); ok && len(triggered) > 1 {
		fmt.Fprintf(w, "   triggered: %s\n", strings.Join(triggered, ", "))
	}
	keys := make([]string, 0, len(v.Metadata))
	for k := range v.Metadata {
		if k == aggregator.MetaGate || k == aggregator.MetaTriggeredSources {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "   %-12s %v\n", k+":", v.Metadata[k])
	}
}
