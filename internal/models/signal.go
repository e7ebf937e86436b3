package models

// SignalKind: закрытый список типов сигналов. Новый тип = новая константа + строка в таблице.
type SignalKind int

const (
	KindUnknown SignalKind = iota
	KindTop10
	KindTop30
	KindTop50
	KindTriple100
	KindQuadruple100
	KindQuadruple250
	KindSuperVol
	KindSuperVolDouble
	KindHyperVol
	KindHyperVolDouble
	KindUltraVol
	KindXtremeVol
)

type signalKindInfo struct {
	code  string // как в конфиге
	title string // как в тексте алерта
}

var signalKinds = map[SignalKind]signalKindInfo{
	KindTop10:          {"top10", "SymRank Top 10"},
	KindTop30:          {"top30", "SymRank Top 30"},
	KindTop50:          {"top50", "SymRank Top 50"},
	KindTriple100:      {"triple100", "SymRank Top 100 Triple Tracker"},
	KindQuadruple100:   {"quadruple100", "SymRank Top 100 Quadruple Tracker"},
	KindQuadruple250:   {"quadruple250", "SymRank Top 250 Quadruple Tracker"},
	KindSuperVol:       {"svol", "Super Volatility"},
	KindSuperVolDouble: {"svoldouble", "Super Volatility Double Tracker"},
	KindHyperVol:       {"hvol", "Hyper Volatility"},
	KindHyperVolDouble: {"hvoldouble", "Hyper Volatility Double Tracker"},
	KindUltraVol:       {"uvol", "Ultra Volatility"},
	KindXtremeVol:      {"xvol", "X-Treme Volatility"},
}

var (
	kindByTitle = map[string]SignalKind{}
	kindByCode  = map[string]SignalKind{}
)

func init() {
	for k, info := range signalKinds {
		kindByTitle[info.title] = k
		kindByCode[info.code] = k
	}
}

func (k SignalKind) String() string {
	if info, ok := signalKinds[k]; ok {
		return info.code
	}
	return "unknown"
}

// KindFromTitle маппит заголовок алерта на тип сигнала.
func KindFromTitle(title string) SignalKind {
	if k, ok := kindByTitle[title]; ok {
		return k
	}
	return KindUnknown
}

// KindFromCode маппит код из конфига ("top30") на тип сигнала.
func KindFromCode(code string) (SignalKind, bool) {
	k, ok := kindByCode[code]
	return k, ok
}

type Action string

const (
	ActionStart Action = "START"
	ActionStop  Action = "STOP"
)

// NotApplicableScore подставляется вместо "N/A" в алерте.
const NotApplicableScore = 9999999

// Signal: один распарсенный алерт.
type Signal struct {
	Kind        SignalKind
	Pair        string // QUOTE_BASE, например USDT_ABC
	Action      Action
	Volatility  float64
	PriceAction float64
	Rank        int
}

// RankList: снимок топа (до 30 монет) в порядке ранга, без котируемой валюты.
type RankList []string

// Message: результат разбора одного сообщения чата.
// Ровно одно из полей заполнено; пустой Message, болтовня, которую надо игнорировать.
type Message struct {
	Signal *Signal
	Ranks  RankList
}

func (m Message) IsEmpty() bool { return m.Signal == nil && m.Ranks == nil }
