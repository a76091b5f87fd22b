// Copyright 2025 Chorus
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// cloudHosts maps known hosted API hostnames to their provider type.
// Matching is by suffix so regional subdomains resolve too.
var cloudHosts = map[string]ProviderType{
	"api.openai.com":                    ProviderOpenAI,
	"api.anthropic.com":                 ProviderAnthropic,
	"generativelanguage.googleapis.com": ProviderGemini,
	"api.groq.com":                      ProviderGroq,
	"api.mistral.ai":                    ProviderMistral,
	"openai.azure.com":                  ProviderAzureOpenAI,
}

// localPorts maps well-known local runtime ports to their provider type.
var localPorts = map[string]ProviderType{
	"11434": ProviderOllama,
	"1234":  ProviderLMStudio,
	"8080":  ProviderLocalAI,
	"8000":  ProviderVLLM,
}

// localKeywords identify self-hosted runtimes by URL substring when the
// port is non-standard.
var localKeywords = []struct {
	keyword  string
	provider ProviderType
}{
	{"ollama", ProviderOllama},
	{"lmstudio", ProviderLMStudio},
	{"lm-studio", ProviderLMStudio},
	{"localai", ProviderLocalAI},
	{"vllm", ProviderVLLM},
}

// DetectProfile infers the provider and auth requirements from the
// endpoint URL. Cloud providers always require auth. Local runtimes on
// loopback addresses never do. Any other remote endpoint requires auth
// unless allowUnauthenticated overrides it.
func DetectProfile(baseURL, apiKey string, allowUnauthenticated bool) (Profile, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return Profile{}, fmt.Errorf("invalid provider base URL %q", baseURL)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	lowered := strings.ToLower(baseURL)

	p := Profile{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		Provider: ProviderCustom,
	}

	// Hosted APIs: https scheme plus a known hostname
	if u.Scheme == "https" {
		for cloudHost, providerType := range cloudHosts {
			if host == cloudHost || strings.HasSuffix(host, "."+cloudHost) {
				p.Provider = providerType
				p.RequiresAuth = true
				p.AuthType = cloudAuthType(providerType)
				return p, nil
			}
		}
	}

	// Self-hosted runtimes: well-known port or a keyword in the URL
	if providerType, ok := localPorts[port]; ok {
		p.Provider = providerType
	} else {
		for _, lk := range localKeywords {
			if strings.Contains(lowered, lk.keyword) {
				p.Provider = lk.provider
				break
			}
		}
	}

	if isLoopback(host) {
		p.RequiresAuth = false
		p.AuthType = AuthNone
		return p, nil
	}

	// Remote non-cloud endpoint
	p.RequiresAuth = !allowUnauthenticated
	if p.RequiresAuth {
		p.AuthType = AuthBearer
	} else {
		p.AuthType = AuthNone
	}
	return p, nil
}

// cloudAuthType returns the header scheme a hosted provider expects.
func cloudAuthType(t ProviderType) AuthType {
	switch t {
	case ProviderAnthropic, ProviderGemini, ProviderAzureOpenAI:
		return AuthAPIKey
	default:
		return AuthBearer
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// keyPrefixes are the known key formats for hosted providers, checked
// before any network call so a pasted-wrong key fails with a clear reason.
var keyPrefixes = map[ProviderType]string{
	ProviderOpenAI:    "sk-",
	ProviderAnthropic: "sk-ant-",
	ProviderGroq:      "gsk_",
}

// ValidateAuth fails fast when the profile requires credentials that are
// missing or malformed for the detected provider.
func (p Profile) ValidateAuth() error {
	if !p.RequiresAuth {
		return nil
	}
	if p.APIKey == "" {
		return fmt.Errorf("provider %s at %s requires an API key and none is configured", p.Provider, p.BaseURL)
	}
	if prefix, ok := keyPrefixes[p.Provider]; ok && !strings.HasPrefix(p.APIKey, prefix) {
		return fmt.Errorf("API key for provider %s does not match the expected %q prefix", p.Provider, prefix)
	}
	return nil
}
