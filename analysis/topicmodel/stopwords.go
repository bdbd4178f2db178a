package topicmodel

import "strings"

var stopwordLists = map[string]string{
	"english": `a about above after again against all am an and any are as at be because been before
being below between both but by can could did do does doing down during each few for from further
had has have having he her here hers herself him himself his how i if in into is it its itself just
me more most my myself no nor not now of off on once only or other our ours ourselves out over own
same she should so some such than that the their theirs them themselves then there these they this
those through to too under until up very was we were what when where which while who whom why will
with would you your yours yourself yourselves also get got im ive dont didnt doesnt isnt wasnt cant
wont its thats theres one would really`,

	"spanish": `a al algo algunas algunos ante antes como con contra cual cuando de del desde donde
durante e el ella ellas ellos en entre era erais eran eras eres es esa esas ese eso esos esta estaba
estado estamos estan estar estas este esto estos estoy fue fueron fui ha habia han has hasta hay la
las le les lo los mas me mi mis mucho muy nada ni no nos nosotros o os otra otro para pero poco por
porque que quien se sea ser si sin sobre son su sus tambien te tiene tienen todo todos tu tus un una
uno unos y ya yo él más qué también está están sí mí tú`,

	"portuguese": `a ao aos aquela aquele aqueles aquilo as até com como da das de dela dele deles
depois do dos e ela elas ele eles em entre era eram essa esse esta está estão eu foi foram há isso
isto já lhe lhes mais mas me mesmo meu minha muito na não nas nem no nos nós num numa o os ou para
pela pelas pelo pelos por qual quando que quem se sem ser seu sua são só também te tem tinha um uma
você vocês vai ser ter pra`,
}

// stopwordsFor returns the stopword set of language; unknown languages have none.
func stopwordsFor(language string) map[string]struct{} {
	words := strings.Fields(stopwordLists[language])
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
