package pricing

import (
	"odinwatch/pkg/odin"

	"github.com/shopspring/decimal"
)

// BTCAmount converts a trade's native price and amount into its BTC-side value:
// price * (amount / AmountScale) / PriceScale.
func BTCAmount(price, amount decimal.Decimal) decimal.Decimal {
	return price.Mul(amount.Div(odin.AmountScale)).Div(odin.PriceScale)
}

// FiatTotal prices a BTC-side value with the reference price:
// btc * reference / FiatScale.
func FiatTotal(btc, reference decimal.Decimal) decimal.Decimal {
	return btc.Mul(reference).Div(odin.FiatScale)
}

// Estimate is FiatTotal(BTCAmount(price, amount), reference).
func Estimate(price, amount, reference decimal.Decimal) decimal.Decimal {
	return FiatTotal(BTCAmount(price, amount), reference)
}

// TokenAmount scales a native amount to whole tokens.
func TokenAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(odin.TokenDivisor)
}

// UnitPrice scales a native price to sats per token.
func UnitPrice(price decimal.Decimal) decimal.Decimal {
	return price.Div(odin.PriceDivisor)
}
