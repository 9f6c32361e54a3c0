package domainutil

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

var (
	// ErrEmpty is returned for blank input
	ErrEmpty = errors.New("domain must not be empty")
	// ErrWildcard is returned when the input carries a wildcard glyph
	ErrWildcard = errors.New("enter the root domain without '*.'; choose the wildcard type instead")
	// ErrNotApex is returned for subdomains such as www.example.com
	ErrNotApex = errors.New("enter the root domain only, e.g. example.com")
)

// Normalize 对域名进行规范化处理
// 规则：
//   - 小写
//   - trim 空格
//   - 去掉 http:// https:// 前缀与路径
//   - 去掉末尾 .
//   - 去掉端口（如 example.com:443）
//   - 拒绝 IP（IPv4/IPv6）
//   - 拒绝空字符串/非法字符
func Normalize(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", ErrEmpty
	}

	// 去掉 scheme 与路径
	for _, scheme := range []string{"http://", "https://"} {
		host = strings.TrimPrefix(host, scheme)
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}

	host = strings.TrimSuffix(host, ".")

	// 去掉端口
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if host == "" {
		return "", ErrEmpty
	}

	// 拒绝 IPv4 / IPv6
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "", fmt.Errorf("IP address is not allowed as domain: %s", host)
	}

	if len(host) > maxDomainLength {
		return "", fmt.Errorf("domain is longer than %d characters", maxDomainLength)
	}

	// 只允许 a-z 0-9 . - *
	for _, r := range host {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '*') {
			return "", fmt.Errorf("domain contains invalid character %q: %s", r, host)
		}
	}

	if !strings.Contains(host, ".") {
		return "", fmt.Errorf("domain must contain at least one dot: %s", host)
	}

	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return "", fmt.Errorf("domain contains an empty label: %s", host)
		}
		if len(label) > maxLabelLength {
			return "", fmt.Errorf("domain label longer than %d characters: %s", maxLabelLength, label)
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", fmt.Errorf("domain label must not start or end with '-': %s", label)
		}
	}

	return host, nil
}

// EffectiveApex 使用 PSL 计算 eTLD+1（注册域名/授权根）
// 例如：
//   - www.example.com -> example.com
//   - a.b.example.co.uk -> example.co.uk
//   - example.com -> example.com
func EffectiveApex(domain string) (string, error) {
	normalized, err := Normalize(domain)
	if err != nil {
		return "", err
	}

	normalized = strings.TrimPrefix(normalized, "*.")

	apex, err := publicsuffix.EffectiveTLDPlusOne(normalized)
	if err != nil {
		return "", fmt.Errorf("PSL lookup failed for %s: %w", domain, err)
	}
	return apex, nil
}

// ValidateRootDomain normalizes input and checks it can be ordered: no
// wildcard glyph and exactly the registrable domain (eTLD+1). The wildcard
// certificate type adds "*." itself, so both types take the same input.
func ValidateRootDomain(input string) (string, error) {
	domain, err := Normalize(input)
	if err != nil {
		return "", err
	}

	if strings.Contains(domain, "*") {
		return "", ErrWildcard
	}

	apex, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return "", fmt.Errorf("not a registrable domain: %s", domain)
	}
	if apex != domain {
		return "", fmt.Errorf("%w (did you mean %s?)", ErrNotApex, apex)
	}

	return domain, nil
}
