package detection

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var (
	domainPattern = regexp.MustCompile(`@([\w.-]+)`)

	// urlPattern matches http(s) URLs, www-prefixed hosts and bare host/path strings
	urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\d{0,3}\.|[a-z0-9.\-]+\.[a-z]{2,4}/)[^\s()<>"']+`)

	idnaProfile = idna.New(idna.MapForLookup(), idna.Transitional(false))
)

// ExtractDomain returns the lowercased domain following '@' in a raw address
// such as "Alice <alice@example.com>", or "" when there is none.
func ExtractDomain(address string) string {
	match := domainPattern.FindStringSubmatch(address)
	if match == nil {
		return ""
	}
	return strings.Trim(strings.ToLower(match[1]), ".")
}

// BaseName returns the lowercased label before the first dot ("mail" for "mail.example.com")
func BaseName(domain string) string {
	domain = strings.ToLower(domain)
	if i := strings.Index(domain, "."); i >= 0 {
		return domain[:i]
	}
	return domain
}

// uniqueDomains extracts the domains of a list of addresses, keeping first-seen order
func uniqueDomains(addresses []string) []string {
	seen := make(map[string]bool)
	domains := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		d := ExtractDomain(addr)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	return domains
}

// firstDomain returns the domain of the first address that has one
func firstDomain(addresses []string) string {
	for _, addr := range addresses {
		if d := ExtractDomain(addr); d != "" {
			return d
		}
	}
	return ""
}

// normalizeHost lowercases a host, drops the port and a leading "www." and
// converts internationalized names to their ASCII form. IP literals are
// returned without brackets.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if net.ParseIP(host) != nil {
		return host
	}
	host = strings.TrimSuffix(host, ".")
	if ascii, err := idnaProfile.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.TrimPrefix(host, "www.")
}

// parseURL parses a URL found in an email, accepting scheme-less forms like "www.example.com/path"
func parseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") && !strings.HasPrefix(strings.ToLower(raw), "mailto:") {
		raw = "http://" + raw
	}
	return url.Parse(raw)
}

// findURLs returns every URL-shaped substring of text, with trailing punctuation trimmed
func findURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if u := trimURL(m); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// portNumber returns the explicit port of a URL, or 0
func portNumber(port string) int {
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

func isNonStandardPort(port int) bool {
	return port != 0 && port != 80 && port != 443
}

func trimURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), `.,;:'"!?`)
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)

	// Base cases: if either string is empty, distance is the other string's length
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// matrix[i][j] = distance between r1[0:i] and r2[0:j]
	matrix := make([][]int, len(r1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(r2)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(r2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(r1); i++ {
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // Deletion
				matrix[i][j-1]+1,      // Insertion
				matrix[i-1][j-1]+cost, // Substitution
			)
		}
	}

	return matrix[len(r1)][len(r2)]
}

// containsAny checks if text contains any of the keywords
func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// dedupe removes repeated strings, keeping the first occurrence
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
