package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xxxsen/romsync/internal/model"
)

func TestDetectRegion(t *testing.T) {
	cases := map[string]model.Region{
		"Chrono Trigger (USA).sfc":                    model.RegionUSA,
		"arkretrn.zip":                                model.RegionUnknown,
		"Game (USA, Korea).rom":                       model.RegionUSA,
		"Game (Korea, Japan).gb":                      model.RegionJapan,
		"Battletoads (PT-BR).zip":                     model.RegionUnknown,
		"Zelda (Europe) (En,Fr,De).sfc":               model.RegionEurope,
		"Mother (En,Ja) (Japan).nes":                  model.RegionJapan,
		"Sonic (E) [!].md":                            model.RegionEurope,
		"Sonic [!] [Eur].md":                          model.RegionEurope,
		"Mario [a].nes":                               model.RegionUnknown,
		"Mario [b].nes":                               model.RegionUnknown,
		"Mario [f].nes":                               model.RegionUnknown,
		"Mario [a1] [E].nes":                          model.RegionUnknown,
		"Mario (A) [f].nes":                           model.RegionAustralia,
		"Contra (J) [b1].nes":                         model.RegionJapan,
		"Tetris (World) (Rev 1).gb":                   model.RegionWorld,
		"Pokemon (Australian).gb":                     model.RegionAustralia,
		"Mario (Eu Rev A).nes":                        model.RegionEurope,
		"Street Fighter II Korea.zip":                 model.RegionKorea,
		"Super Mario World.sfc":                       model.RegionUnknown,
		"Castlevania (Capcom Collection).nes":         model.RegionUnknown,
		"Final Fantasy (PT-BR) (Traducao).zip":        model.RegionUnknown,
		"Secret of Mana (Hong Kong).sfc":              model.RegionHongKong,
		"Metroid (Beta) [USA].gba":                    model.RegionUSA,
		"Captain America and the Avengers (Beta).nes": model.RegionUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectRegion(name), name)
	}
}

func TestCleanDisplayName(t *testing.T) {
	cases := map[string]string{
		"Chrono Trigger (USA).sfc":              "Chrono Trigger",
		"super_mario_bros (E) [!].nes":          "Super Mario Bros",
		"the.legend.of.zelda (USA) (Rev 1).sfc": "The Legend Of Zelda",
		"MEGA MAN   (Europe).gba":               "Mega Man",
		"Super Mario Bros. 3":                   "Super Mario Bros 3",
		"Kirby's Adventure (USA).nes":           "Kirby's Adventure",
		"(USA).nes":                             "(USA)",
		"Mega Man X: Command Mission (USA).gba": "Mega Man X Command Mission",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanDisplayName(in), in)
	}
}

func TestSortKey(t *testing.T) {
	assert.Equal(t, "super mario", SortKey("Super Mario"))
	assert.Equal(t, "san guo zhi", SortKey("三国志"))
	assert.Equal(t, "san guo zhi ii", SortKey("三国志 II"))
}
