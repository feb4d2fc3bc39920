package interpreter

import "regexp"

// metals maps named precious metals to their canonical forex-style symbol.
var metals = []struct{ name, symbol string }{
	{"gold", "XAU/USD"},
	{"silver", "XAG/USD"},
	{"platinum", "XPT/USD"},
	{"palladium", "XPD/USD"},
}

// crypto maps named cryptocurrencies (and common abbreviations) to symbols.
var crypto = []struct{ name, symbol string }{
	{"bitcoin", "BTC/USD"},
	{"btc", "BTC/USD"},
	{"ethereum", "ETH/USD"},
	{"eth", "ETH/USD"},
	{"litecoin", "LTC/USD"},
	{"ltc", "LTC/USD"},
}

// stockNames maps company names to their ticker.
var stockNames = []struct{ name, symbol string }{
	{"apple", "AAPL"},
	{"microsoft", "MSFT"},
	{"google", "GOOGL"},
	{"alphabet", "GOOGL"},
	{"amazon", "AMZN"},
	{"meta", "META"},
	{"facebook", "META"},
	{"nvidia", "NVDA"},
	{"tesla", "TSLA"},
	{"jpmorgan", "JPM"},
	{"jp morgan", "JPM"},
	{"walmart", "WMT"},
	{"johnson", "JNJ"},
	{"exxon", "XOM"},
	{"chevron", "CVX"},
}

var forexPairs = []string{
	"EUR/USD", "GBP/USD", "USD/JPY", "USD/CHF", "AUD/USD", "USD/CAD",
	"NZD/USD", "EUR/GBP", "EUR/JPY", "GBP/JPY",
}

var commonStocks = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "GOOG": true, "AMZN": true,
	"META": true, "NVDA": true, "TSLA": true, "JPM": true, "V": true,
	"MA": true, "UNH": true, "JNJ": true, "WMT": true, "PG": true,
	"XOM": true, "CVX": true, "BAC": true,
}

// excludedWords keeps English stop-words, indicator acronyms, bare currency
// codes, time units, and named-entity words (already matched above) out of
// the speculative-ticker fallback.
var excludedWords = map[string]bool{
	"THE": true, "IS": true, "OF": true, "TO": true, "FOR": true, "AT": true,
	"BY": true, "IN": true, "ON": true, "AN": true, "IT": true, "ITS": true,
	"WHAT": true, "HOW": true, "SHOW": true, "GET": true, "GIVE": true, "ME": true,
	"AND": true, "OR": true, "WITH": true,
	"PRICE": true, "COST": true, "WORTH": true, "VALUE": true, "RATE": true,
	"DATA": true, "QUOTE": true,
	"LAST": true, "PAST": true, "TODAY": true, "NOW": true, "CURRENT": true,
	"DAILY": true, "WEEKLY": true,
	"SMA": true, "EMA": true, "RSI": true, "MACD": true, "ADX": true,
	"ATR": true, "CCI": true, "OBV": true, "ROC": true,
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "CAD": true, "NZD": true,
	"DAY": true, "WEEK": true, "MONTH": true, "YEAR": true, "HOUR": true, "MIN": true,
	"CAN": true, "YOU": true, "TELL": true, "ABOUT": true, "THIS": true,
	"THAT": true, "FROM": true,
	"GOLD": true, "SILVER": true, "PLATINUM": true, "BITCOIN": true, "ETHEREUM": true,
	"JOKE": true, "FUNNY": true, "HELP": true, "HELLO": true, "HI": true,
	"BYE": true, "THANKS": true, "PLEASE": true,
	"STOCK": true, "STOCKS": true, "MARKET": true, "TRADING": true, "TRADE": true,
	"TRADES": true,
	"INFO": true, "KNOW": true, "WANT": true, "NEED": true, "LIKE": true,
}

// financialIntentPhrases gate the speculative-ticker fallback.
var financialIntentPhrases = []string{
	"price", "quote", "cost", "worth", "value", "trading at",
	"buy", "sell", "invest", "stock", "share", "ticker",
	"chart", "history", "historical", "candle", "ohlc",
	"indicator", "sma", "ema", "rsi", "macd",
}

// indicatorTable maps phrase to canonical indicator name. Order matters:
// the first matching phrase (in table order) wins, so longer, more specific
// phrases are listed before the abbreviations they expand.
var indicatorTable = []struct{ phrase, name string }{
	{"simple moving average", "sma"},
	{"exponential moving average", "ema"},
	{"moving average convergence divergence", "macd"},
	{"sma", "sma"},
	{"moving average", "sma"},
	{"ema", "ema"},
	{"relative strength index", "rsi"},
	{"rsi", "rsi"},
	{"macd", "macd"},
	{"bollinger bands", "bbands"},
	{"bbands", "bbands"},
	{"stochastic", "stoch"},
	{"stoch", "stoch"},
	{"average directional index", "adx"},
	{"adx", "adx"},
	{"average true range", "atr"},
	{"atr", "atr"},
	{"commodity channel index", "cci"},
	{"cci", "cci"},
	{"on balance volume", "obv"},
	{"obv", "obv"},
	{"momentum", "mom"},
	{"mom", "mom"},
	{"rate of change", "roc"},
	{"roc", "roc"},
	{"williams %r", "willr"},
	{"willr", "willr"},
}

// intervalTable maps phrase to canonical interval. Longer phrases are
// listed before the bare word they might also match against.
var intervalTable = []struct{ phrase, interval string }{
	{"1 minute", "1min"}, {"1min", "1min"},
	{"5 minute", "5min"}, {"5min", "5min"},
	{"15 minute", "15min"}, {"15min", "15min"},
	{"30 minute", "30min"}, {"30min", "30min"},
	{"1 hour", "1h"}, {"1h", "1h"}, {"hourly", "1h"},
	{"4 hour", "4h"}, {"4h", "4h"},
	{"daily", "1day"}, {"1 day", "1day"}, {"1day", "1day"}, {"day", "1day"},
	{"weekly", "1week"}, {"1 week", "1week"}, {"1week", "1week"}, {"week", "1week"},
	{"monthly", "1month"}, {"1 month", "1month"}, {"1month", "1month"}, {"month", "1month"},
}

var currencyWordMap = map[string]string{
	"dollar": "USD", "dollars": "USD", "usd": "USD",
	"euro": "EUR", "euros": "EUR", "eur": "EUR",
	"pound": "GBP", "pounds": "GBP", "gbp": "GBP",
	"yen": "JPY", "jpy": "JPY",
	"franc": "CHF", "francs": "CHF", "chf": "CHF",
}

var (
	tickerWordRe      = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	explicitPairRe    = regexp.MustCompile(`\b([A-Z]{2,6}/[A-Z]{2,6})\b`)
	lastNDaysRe       = regexp.MustCompile(`last\s+\d+\s+(?:days?|weeks?|months?|hours?)`)
	timePeriodRe1     = regexp.MustCompile(`(\d+)[\s-]*(?:period|day|days)`)
	timePeriodRe2     = regexp.MustCompile(`period\s*of\s*(\d+)`)
	timePeriodRe3     = regexp.MustCompile(`(\d+)[\s-]*(?:day|week)\s*(?:sma|ema|rsi|macd)`)
	outputSizeRe1     = regexp.MustCompile(`last\s*(\d+)\s*(?:days?|weeks?|candles?|points?|bars?)`)
	outputSizeRe2     = regexp.MustCompile(`(\d+)\s*(?:days?|weeks?|candles?|points?|bars?)\s*of`)
	amountRe          = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	currencyCodeRe    = regexp.MustCompile(`\b(USD|EUR|GBP|JPY|CHF|AUD|CAD|NZD)\b`)
	followUpPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`\bits?\b`),
		regexp.MustCompile(`\bthat\b`),
		regexp.MustCompile(`\bthe same\b`),
		regexp.MustCompile(`\bthis\b`),
		regexp.MustCompile(`\bsame (?:stock|symbol)\b`),
		regexp.MustCompile(`\band what about\b`),
		regexp.MustCompile(`\bhow about\b`),
		regexp.MustCompile(`\bwhat about\b`),
		regexp.MustCompile(`\balso\b`),
		regexp.MustCompile(`\btoo\b`),
	}
)

var commoditiesListPhrases = []string{"list commodities", "available commodities", "show commodities"}
var conversionPhrases = []string{"convert", "exchange", "to usd", "to eur", "to gbp", "how much is"}
var historicalPhrases = []string{
	"historical", "history", "past", "chart", "time series", "candles",
	"over time", "last week", "last month", "last year", "trend",
}
var quotePhrases = []string{"quote", "detailed", "52 week", "volume", "high low", "open close", "ohlc"}
var comparisonPhrases = []string{"compare", "vs", "versus", "against", "difference between"}
