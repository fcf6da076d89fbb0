package helper

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"GISData-App/internal/domain/model"
)

// 属性に現れる行政区分のキー表記ゆれ（先に一致したものを優先）
var (
	StateKeys    = []string{"State_Name", "state", "STATE", "State", "state_name"}
	DistrictKeys = []string{"District_Name", "district", "DISTRICT", "District", "district_name"}
	TalukKeys    = []string{"Taluk_Name", "taluk", "TALUK", "Taluk", "Block_Name", "block", "taluk_name"}
	VillageKeys  = []string{"Village_Name", "village", "VILLAGE", "Village", "village_name"}
)

// indianStates ファイル名の先頭トークンと照合する州名
var indianStates = []string{
	"karnataka", "kerala", "tamil nadu", "andhra pradesh", "telangana",
	"maharashtra", "gujarat", "rajasthan", "punjab", "haryana",
	"uttar pradesh", "bihar", "west bengal", "odisha", "assam",
	"madhya pradesh", "chhattisgarh", "jharkhand", "uttarakhand",
	"himachal pradesh", "goa", "delhi", "jammu kashmir",
}

// stateAliases ファイル名にこれらが含まれる場合、州を強制的に上書きする
var stateAliases = []struct {
	tokens []string
	state  string
}{
	{tokens: []string{"karnataka", "bangalore", "bengaluru"}, state: "Karnataka"},
}

// propertyScanLimit 属性から州・地区を探す地物数の上限
const propertyScanLimit = 10

// LocationMeta 州・地区（見つからない場合は空文字列）
type LocationMeta struct {
	State    string
	District string
}

// ExtractFromFilename ファイル名から州・地区を推定する
// 先頭トークンが州名と部分一致すれば州、残りを地区とし、一致しなければファイル名全体を地区とする
func ExtractFromFilename(filename string) LocationMeta {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(stem))

	// cases.Caser は状態を持つため呼び出しごとに生成する
	titleCaser := cases.Title(language.Und)

	var meta LocationMeta
	if len(parts) > 0 {
		first := strings.ToLower(parts[0])
		for _, state := range indianStates {
			if strings.Contains(state, first) || strings.Contains(first, state) {
				meta.State = titleCaser.String(parts[0])
				if len(parts) > 1 {
					meta.District = titleCaser.String(strings.Join(parts[1:], " "))
				}
				break
			}
		}
		if meta.State == "" {
			meta.District = titleCaser.String(strings.Join(parts, " "))
		}
	}

	lowerStem := strings.ToLower(stem)
	for _, alias := range stateAliases {
		for _, token := range alias.tokens {
			if strings.Contains(lowerStem, token) {
				meta.State = alias.state
				break
			}
		}
	}

	if meta.District == "" && stem != "" {
		meta.District = titleCaser.String(stem)
	}
	return meta
}

// ExtractFromProperties 先頭10件の地物の属性から州・地区を探す。両方見つかった時点で打ち切る
func ExtractFromProperties(features []model.CanonicalFeature) LocationMeta {
	var meta LocationMeta
	for i, f := range features {
		if i >= propertyScanLimit {
			break
		}
		if meta.State == "" {
			meta.State = FirstPropertyValue(f.Properties, StateKeys)
		}
		if meta.District == "" {
			meta.District = FirstPropertyValue(f.Properties, DistrictKeys)
		}
		if meta.State != "" && meta.District != "" {
			break
		}
	}
	return meta
}

// FirstPropertyValue keys の順に探し、最初に見つかった空でない値を返す
func FirstPropertyValue(props map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok {
			if s := strings.TrimSpace(model.StringValue(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// ResolveLocation 明示指定 > 属性 > ファイル名 の優先順で州・地区を決定する
func ResolveLocation(explicit LocationMeta, features []model.CanonicalFeature, filename string) LocationMeta {
	fromProps := ExtractFromProperties(features)
	fromName := ExtractFromFilename(filename)

	return LocationMeta{
		State:    firstNonEmpty(explicit.State, fromProps.State, fromName.State),
		District: firstNonEmpty(explicit.District, fromProps.District, fromName.District),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
