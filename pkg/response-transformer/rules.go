// Package responsetransformer adjusts the caching headers of origin responses
// with configured rules, before the response is evaluated for caching.
package responsetransformer

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type Rules []Rule

// Rule matches GET requests by path, prefix and query.
// The first matching rule is applied.
type Rule struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	// Only GET is supported. Rules for other methods never match.
	Method string `yaml:"method"`
	// Cache-Control to use if the response has none.
	Default string `yaml:"default"`
	// Cache-Control to use regardless of the response.
	Override string `yaml:"override"`
	// Query parameters that must be present. An empty value only requires presence.
	Query map[string]string `yaml:"query"`
	// Additional headers to set.
	Headers map[string]string `yaml:"headers"`
}

// Apply changes the headers of res according to the first matching rule.
// res.Request must be set. Only 200 responses are changed.
func (r Rules) Apply(res *http.Response, log zerolog.Logger) {
	if len(r) == 0 || res.StatusCode != http.StatusOK || res.Request == nil {
		return
	}
	if rule := r.find(res.Request, log); rule != nil {
		applyRuleToResponse(*rule, res, log)
	}
}

func applyRuleToResponse(rule Rule, res *http.Response, log zerolog.Logger) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		res.Header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && len(res.Header.Values("Cache-Control")) == 0 {
		log.Trace().Msg("Applying default Cache-Control header")
		res.Header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		res.Header.Set(name, value)
	}
}

func (r Rules) find(req *http.Request, log zerolog.Logger) *Rule {
	if req.Method != http.MethodGet {
		return nil
	}
	log.Trace().Msgf("Finding rule for request %s:%s", req.Method, req.URL.Path)
rulesLoop:
	for i, rule := range r {
		if rule.Method != "" && rule.Method != http.MethodGet {
			continue
		}
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		log.Trace().Msgf("Using rule %+v", rule)
		return &r[i]
	}
	return nil
}
