package services

import "strings"

// ペルソナ・地域は英名と中文名の両方で問い合わせが来るため、
// 正規名（データセット内の表記）へ寄せてから照合する。
var personaAliases = map[string]string{
	"fresh_grad":     "Fresh_Grad",
	"fresh_graduate": "Fresh_Grad",
	"新鮮人":            "Fresh_Grad",
	"fintech_family": "FinTech_Family",
	"fintech family": "FinTech_Family",
	"fintech家庭":      "FinTech_Family",
}

var regionAliases = map[string]string{
	"taipei": "Taipei",
	"台北":     "Taipei",
	"tainan": "Tainan",
	"台南":     "Tainan",
}

// NormalizePersona はペルソナ名の別表記を正規名に変換します。
// 未知の表記はそのまま返します（オープンな列挙のため）。
func NormalizePersona(persona string) string {
	key := strings.ToLower(strings.TrimSpace(persona))
	if key == "" {
		return ""
	}
	if canonical, ok := personaAliases[key]; ok {
		return canonical
	}
	return strings.TrimSpace(persona)
}

// NormalizeRegion は地域名の別表記を正規名に変換します。
func NormalizeRegion(region string) string {
	key := strings.ToLower(strings.TrimSpace(region))
	if key == "" {
		return ""
	}
	if canonical, ok := regionAliases[key]; ok {
		return canonical
	}
	return strings.TrimSpace(region)
}
