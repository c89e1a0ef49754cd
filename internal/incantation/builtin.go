package incantation

// builtinEntries is the stock library shipped with glyphcast. Hosts may
// extend or replace it with a library file.
var builtinEntries = []Entry{
	{
		ID:            "fire_ball",
		DisplayName:   "爆裂魔法",
		Incantation:   "比那黑更黑的深渊祈求吾之深红闪光觉醒之时已然降临",
		AlternateName: "爆裂",
		Element:       "fire",
		BasePower:     103,
		Cost:          30,
		CooldownTurns: 3,
		Effects:       Effects(EffectDamage, EffectBurn),
		VolumeCurve:   &ShoutCurve,
		Variants: []string{
			"比那黑更黑的深渊祈求吾之深红闪光觉醒之时以然降临",
			"比那黑更黑的深渊期求吾之深红闪光觉醒之时已然降临",
		},
	},
	{
		ID:          "basic_attack",
		DisplayName: "普通攻击",
		Incantation: "普攻",
		Element:     "physical",
		BasePower:   50,
		Effects:     Effects(EffectDamage),
		Variants:    []string{"普工", "铺攻"},
	},
	{
		ID:            "heal",
		DisplayName:   "治愈术",
		Incantation:   "治愈之光",
		Element:       "light",
		BasePower:     60,
		Cost:          15,
		CooldownTurns: 1,
		Effects:       Effects(EffectHeal, EffectCleanse),
		Variants:      []string{"治御之光", "知遇之光"},
	},
	{
		ID:            "frost_wall",
		DisplayName:   "冰墙",
		Incantation:   "凛冬之息化作永恒的壁垒",
		AlternateName: "冰墙术",
		Element:       "ice",
		BasePower:     40,
		Cost:          20,
		CooldownTurns: 2,
		Effects:       Effects(EffectShield, EffectFreeze),
		Variants:      []string{"林冬之息化作永恒的壁垒"},
	},
	{
		ID:            "thunder_call",
		DisplayName:   "天雷",
		Incantation:   "九天之上的雷霆听吾号令降下神罚",
		AlternateName: "天雷降世",
		Element:       "thunder",
		BasePower:     90,
		Cost:          25,
		CooldownTurns: 2,
		Effects:       Effects(EffectDamage, EffectStun),
		VolumeCurve:   &ShoutCurve,
	},
	{
		ID:            "war_cry",
		DisplayName:   "战吼",
		Incantation:   "为了荣耀",
		Element:       "none",
		BasePower:     0,
		Cost:          5,
		CooldownTurns: 4,
		Effects:       Effects(EffectBuff),
		VolumeCurve:   &ShoutCurve,
	},
}

// Builtin returns a new library populated with the stock entries.
func Builtin() *Library {
	lib := NewLibrary()
	if err := RegisterBuiltin(lib); err != nil {
		panic("incantation: builtin library is invalid: " + err.Error())
	}
	return lib
}

// RegisterBuiltin adds the stock entries to lib.
func RegisterBuiltin(lib *Library) error {
	for _, e := range builtinEntries {
		if err := lib.Register(e); err != nil {
			return err
		}
	}
	return nil
}
