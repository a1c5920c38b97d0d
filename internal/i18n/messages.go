package i18n

import (
	"golang.org/x/text/language"

	"agiletools/pkg/types"
)

var translations = map[language.Tag]map[types.Reason]string{
	language.English: {
		types.ReasonSessionNotFound:       "This session does not exist.",
		types.ReasonRoundNotFound:         "This round does not exist.",
		types.ReasonConfigNotFound:        "This wheel does not exist.",
		types.ReasonNotFacilitator:        "Only the facilitator can do this.",
		types.ReasonNotAParticipant:       "You are not a participant of this session.",
		types.ReasonNotConfigOwner:        "Only the creator of this wheel can change it.",
		types.ReasonRoundAlreadyActive:    "A round is already in progress.",
		types.ReasonNoActiveRound:         "There is no round in progress.",
		types.ReasonVotesAlreadyRevealed:  "Votes have already been revealed.",
		types.ReasonVotesNotRevealed:      "Reveal the votes before completing the round.",
		types.ReasonRoundAlreadyCompleted: "This round is already completed.",
		types.ReasonSessionCompleted:      "This session is completed.",
		types.ReasonInvalidVote:           "This card is not in the deck.",
		types.ReasonInvalidEstimate:       "The final estimate must be a card or a non-negative number.",
		types.ReasonInvalidTitle:          "The title must be between 1 and 200 characters.",
		types.ReasonInvalidDescription:    "The description must be at most 1000 characters.",
		types.ReasonInvalidUsername:       "The username must be 1 to 50 letters, digits, dots, dashes or underscores.",
		types.ReasonInvalidWheel:          "A wheel needs a name and between 1 and 50 items.",
		types.ReasonInvalidMessage:        "Messages must be between 1 and 2000 characters.",
		ReasonBadRequest:                  "The request body is malformed.",
		ReasonUnauthorized:                "Sign in to continue.",
		ReasonInternal:                    "Something went wrong. Please try again.",
	},
	language.French: {
		types.ReasonSessionNotFound:       "Cette session n'existe pas.",
		types.ReasonRoundNotFound:         "Ce tour n'existe pas.",
		types.ReasonConfigNotFound:        "Cette roue n'existe pas.",
		types.ReasonNotFacilitator:        "Seul l'animateur peut faire cela.",
		types.ReasonNotAParticipant:       "Vous ne participez pas à cette session.",
		types.ReasonNotConfigOwner:        "Seul le créateur de cette roue peut la modifier.",
		types.ReasonRoundAlreadyActive:    "Un tour est déjà en cours.",
		types.ReasonNoActiveRound:         "Aucun tour n'est en cours.",
		types.ReasonVotesAlreadyRevealed:  "Les votes ont déjà été révélés.",
		types.ReasonVotesNotRevealed:      "Révélez les votes avant de terminer le tour.",
		types.ReasonRoundAlreadyCompleted: "Ce tour est déjà terminé.",
		types.ReasonSessionCompleted:      "Cette session est terminée.",
		types.ReasonInvalidVote:           "Cette carte ne fait pas partie du jeu.",
		types.ReasonInvalidEstimate:       "L'estimation finale doit être une carte ou un nombre positif.",
		types.ReasonInvalidTitle:          "Le titre doit comporter entre 1 et 200 caractères.",
		types.ReasonInvalidDescription:    "La description doit comporter au plus 1000 caractères.",
		types.ReasonInvalidUsername:       "Le nom d'utilisateur doit comporter 1 à 50 lettres, chiffres, points, tirets ou soulignés.",
		types.ReasonInvalidWheel:          "Une roue doit avoir un nom et entre 1 et 50 éléments.",
		types.ReasonInvalidMessage:        "Les messages doivent comporter entre 1 et 2000 caractères.",
		ReasonBadRequest:                  "Le corps de la requête est invalide.",
		ReasonUnauthorized:                "Connectez-vous pour continuer.",
		ReasonInternal:                    "Une erreur est survenue. Veuillez réessayer.",
	},
}
