package services

import (
	"cdp-twin-api/pkg/models"
)

// PersonaResolver resolves a requested persona against a profile snapshot.
// 新規ペルソナの扱い（即エラー or クラスタ近似）を差し替え可能にしておく。
// エンジンのデフォルトは厳密一致。
type PersonaResolver interface {
	Resolve(snap *ProfileSnapshot, persona string) (models.PersonaProfile, error)
}

// ExactMatchResolver はデータセットで観測済みのペルソナのみ許可します。
type ExactMatchResolver struct{}

// Resolve implements PersonaResolver.
func (ExactMatchResolver) Resolve(snap *ProfileSnapshot, persona string) (models.PersonaProfile, error) {
	return snap.Lookup(persona)
}

// GlobalBaselineResolver は未観測ペルソナを全体平均プロファイルに割り当てます。
// 本来はクラスタリングで最近傍ペルソナへ寄せるべきところの決定的な近似。
// 履歴が無い以上、弾力性はフォールバック表を使う。
type GlobalBaselineResolver struct{}

// Resolve implements PersonaResolver.
func (GlobalBaselineResolver) Resolve(snap *ProfileSnapshot, persona string) (models.PersonaProfile, error) {
	if profile, err := snap.Lookup(persona); err == nil {
		return profile, nil
	}

	if len(snap.Profiles) == 0 {
		return models.PersonaProfile{}, models.ErrEmptyDataset
	}

	// レコード数で重み付けした全体平均ベースライン
	distSum := make(map[string]float64)
	total := 0
	for _, profile := range snap.Profiles {
		w := float64(profile.RecordCount)
		for brand, share := range profile.BaselineDistribution {
			distSum[brand] += share * w
		}
		total += profile.RecordCount
	}
	baseline := make(map[string]float64, len(distSum))
	for brand, sum := range distSum {
		baseline[brand] = sum / float64(total)
	}
	renormalize(baseline)

	return models.PersonaProfile{
		Persona:              NormalizePersona(persona),
		BaselineDistribution: baseline,
		Elasticity:           fallbackElasticity,
		RecordCount:          0,
		Calibrated:           false,
	}, nil
}
