package service

import (
	"slices"
	"strconv"
	"strings"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

const (
	signalLines   = 7
	rankListLines = 17
)

// Parse разбирает текст сообщения чата 3CQS. Всё, что не алерт и не top30, даёт пустой Message.
//
// Алерт:
//
//	<header>
//	SymRank Top 30
//	#ABC
//	BOT_START
//	Volatility Score 3.1
//	Price Action Score 1.2
//	SymRank #12
//
// Список top30, 17 строк, в строках по два столбца "1. BTC   16. XRP".
func Parse(text, market string) models.Message {
	lines := strings.Split(text, "\n")
	switch len(lines) {
	case signalLines:
		sig, ok := parseSignal(lines, market)
		if !ok {
			return models.Message{}
		}
		return models.Message{Signal: &sig}
	case rankListLines:
		// список "Volatile" приходит в том же формате, он нам не нужен
		if strings.Contains(lines[0], "Volatile") {
			return models.Message{}
		}
		return models.Message{Ranks: parseRanks(lines)}
	}
	return models.Message{}
}

func parseSignal(lines []string, market string) (models.Signal, bool) {
	token := strings.TrimSpace(strings.ReplaceAll(lines[2], "#", ""))
	action := models.Action(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[3]), "BOT_")))
	if action != models.ActionStart && action != models.ActionStop {
		logger.Debug("[SIGNAL] unknown action %q", lines[3])
		return models.Signal{}, false
	}
	if token == "" {
		return models.Signal{}, false
	}

	vol, ok1 := score(lines[4], "Volatility Score ")
	pa, ok2 := score(lines[5], "Price Action Score ")
	rank, ok3 := score(lines[6], "SymRank #")
	if !ok1 || !ok2 || !ok3 {
		logger.Debug("[SIGNAL] cannot parse scores of %s", token)
		return models.Signal{}, false
	}

	return models.Signal{
		Kind:        models.KindFromTitle(strings.TrimSpace(lines[1])),
		Pair:        market + "_" + token,
		Action:      action,
		Volatility:  vol,
		PriceAction: pa,
		Rank:        int(rank),
	}, true
}

// score: "N/A", NotApplicableScore.
func score(line, prefix string) (float64, bool) {
	v := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), prefix))
	if v == "N/A" {
		return models.NotApplicableScore, true
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func parseRanks(lines []string) models.RankList {
	byRank := map[int]string{}
	for _, row := range lines {
		if !strings.Contains(row, ". ") {
			continue
		}
		f := strings.Fields(row)
		for i := 0; i+1 < len(f); i += 2 {
			n, err := strconv.Atoi(strings.TrimSuffix(f[i], "."))
			if err != nil {
				break
			}
			byRank[n] = f[i+1]
		}
	}
	if len(byRank) == 0 {
		return nil
	}

	ranks := make([]int, 0, len(byRank))
	for n := range byRank {
		ranks = append(ranks, n)
	}
	slices.Sort(ranks)
	out := make(models.RankList, 0, len(ranks))
	for _, n := range ranks {
		out = append(out, byRank[n])
	}
	return out
}
